package reassessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/scheduling"
)

// BusySlots reports slot start times already taken at a clinic.
type BusySlots interface {
	BusySlots(ctx context.Context, clinicID string, from, to time.Time) ([]time.Time, error)
}

// PreferredTime is the slot reassessments are booked into when free.
const PreferredTime = "10:30"

type Service struct {
	repo       Repository
	grid       *scheduling.Grid
	busy       BusySlots
	comparator Comparator
	interval   int
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, grid *scheduling.Grid, busy BusySlots, intervalDays int, logger zerolog.Logger) *Service {
	if intervalDays <= 0 {
		intervalDays = workflow.DefaultReassessmentIntervalDays
	}
	return &Service{
		repo:       repo,
		grid:       grid,
		busy:       busy,
		comparator: NewComparator(),
		interval:   intervalDays,
		logger:     logger.With().Str("component", "reassessment").Logger(),
		now:        time.Now,
	}
}

// Compare exposes the comparator for callers holding both snapshots.
func (s *Service) Compare(previous, current Snapshot) (ComparisonResult, bool) {
	return s.comparator.Compare(previous, current)
}

// Schedule books the next reassessment interval days after from, on the
// first free grid slot. An existing open record is returned unchanged.
func (s *Service) Schedule(ctx context.Context, patientID uuid.UUID, clinicID string, from time.Time, previousSessionID *uuid.UUID) (*Record, error) {
	if patientID == uuid.Nil || clinicID == "" {
		return nil, apperror.Validation("reassessment.schedule", "patient and clinic are required")
	}
	if open, err := s.repo.Open(ctx, patientID); err == nil {
		return open, nil
	} else if !apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Store("reassessment.schedule", err)
	}

	target := from.In(s.grid.Location()).AddDate(0, 0, s.interval)
	target = time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, target.Location())

	var busy []time.Time
	if s.busy != nil {
		b, err := s.busy.BusySlots(ctx, clinicID, target, target.AddDate(0, 0, 7))
		if err != nil {
			s.logger.Warn().Err(err).Str("clinic_id", clinicID).Msg("busy slots unavailable, scheduling on an empty grid")
		}
		busy = b
	}
	slot, ok := s.grid.NextAvailable(target, busy, PreferredTime)
	if !ok {
		return nil, apperror.Integrity("reassessment.schedule", "no free slot in the week after %s", target.Format("2006-01-02"))
	}

	rec := &Record{
		PatientID:         patientID,
		ClinicID:          clinicID,
		ScheduledAt:       slot.Start.UTC(),
		PreviousSessionID: previousSessionID,
		RemindersSent:     []int{},
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrOpenRecordExists) {
			return s.repo.Open(ctx, patientID)
		}
		return nil, apperror.Transient("reassessment.schedule", err)
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Time("scheduled_at", rec.ScheduledAt).
		Msg("reassessment scheduled")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	return rec, apperror.Store("reassessment.get", err)
}

func (s *Service) Open(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	rec, err := s.repo.Open(ctx, patientID)
	return rec, apperror.Store("reassessment.open", err)
}

func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	return items, apperror.Store("reassessment.history", err)
}

// Due lists the clinic's open records on or past their date.
func (s *Service) Due(ctx context.Context, clinicID string, now time.Time) ([]DueItem, error) {
	open, err := s.repo.ListOpen(ctx, clinicID)
	if err != nil {
		return nil, apperror.Store("reassessment.due", err)
	}
	out := []DueItem{}
	for _, r := range open {
		overdue := s.grid.CalendarDays(r.ScheduledAt, now)
		if overdue < 0 {
			continue
		}
		out = append(out, DueItem{Record: r, DaysOverdue: overdue})
	}
	return out, nil
}

// PendingReminders returns, per open record, the most recent reminder whose
// date has arrived and has not been sent. Older missed reminders are
// superseded by it.
func (s *Service) PendingReminders(ctx context.Context, clinicID string, now time.Time) ([]Reminder, error) {
	open, err := s.repo.ListOpen(ctx, clinicID)
	if err != nil {
		return nil, apperror.Store("reassessment.reminders", err)
	}
	out := []Reminder{}
	for _, r := range open {
		until := s.grid.CalendarDays(now, r.ScheduledAt)
		if until < 0 {
			continue
		}
		for i := len(ReminderOffsets) - 1; i >= 0; i-- {
			off := ReminderOffsets[i]
			if until > off {
				continue
			}
			if !r.reminderSent(off) {
				out = append(out, Reminder{Record: r, DaysBefore: off})
			}
			break
		}
	}
	return out, nil
}

// MarkReminderSent records the reminder at offset and every earlier one.
func (s *Service) MarkReminderSent(ctx context.Context, recordID uuid.UUID, offset int) error {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return apperror.Store("reassessment.reminder", err)
	}
	sent := append([]int{}, rec.RemindersSent...)
	for _, off := range ReminderOffsets {
		if off >= offset && !rec.reminderSent(off) {
			sent = append(sent, off)
		}
	}
	if len(sent) == len(rec.RemindersSent) {
		return nil
	}
	return apperror.Store("reassessment.reminder", s.repo.SetRemindersSent(ctx, recordID, sent))
}

// Outcome is the result of closing a reassessment.
type Outcome struct {
	Record     *Record           `json:"record"`
	Comparison *ComparisonResult `json:"comparison,omitempty"`
	NextStage  workflow.Stage    `json:"next_stage"`
	Next       *Record           `json:"next,omitempty"`
}

// Complete closes the patient's open record with the comparison of the two
// snapshots and picks the next stage. When treatment continues the next
// record in the chain is scheduled. With no comparable snapshots treatment
// simply continues.
func (s *Service) Complete(ctx context.Context, patientID uuid.UUID, sessionID uuid.UUID, previous, current Snapshot) (*Outcome, error) {
	rec, err := s.repo.Open(ctx, patientID)
	if err != nil {
		return nil, apperror.Store("reassessment.complete", err)
	}

	out := &Outcome{Record: rec, NextStage: workflow.StageInTreatment}
	if cmp, ok := s.comparator.Compare(previous, current); ok {
		out.Comparison = &cmp
		out.NextStage = workflow.NextStageAfterReassessment(cmp.OverallImprovement)
	} else {
		s.logger.Warn().Str("patient_id", patientID.String()).Msg("reassessment has no comparable snapshots, continuing treatment")
	}

	now := s.now().UTC()
	rec.Comparison = out.Comparison
	rec.SessionID = &sessionID
	rec.CompletedAt = &now
	if err := s.repo.Complete(ctx, rec); err != nil {
		return nil, apperror.Store("reassessment.complete", err)
	}
	rec.Status = StatusCompleted

	if out.NextStage == workflow.StageInTreatment {
		next, err := s.Schedule(ctx, patientID, rec.ClinicID, now, &sessionID)
		if err != nil {
			return nil, err
		}
		out.Next = next
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("next_stage", string(out.NextStage)).
		Msg("reassessment completed")
	return out, nil
}

// CompletedBy rebuilds the outcome of the record that sessionID closed, so a
// repeated completion reports the same decision. The follow-up record is
// the one chained from that session.
func (s *Service) CompletedBy(ctx context.Context, patientID, sessionID uuid.UUID) (*Outcome, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperror.Store("reassessment.completed_by", err)
	}
	var out *Outcome
	for _, rec := range items {
		if rec.Status == StatusCompleted && rec.SessionID != nil && *rec.SessionID == sessionID {
			out = &Outcome{Record: rec, Comparison: rec.Comparison, NextStage: workflow.StageInTreatment}
			if rec.Comparison != nil {
				out.NextStage = workflow.NextStageAfterReassessment(rec.Comparison.OverallImprovement)
			}
			break
		}
	}
	if out == nil {
		return nil, apperror.NotFound("reassessment.completed_by", "completed reassessment")
	}
	for _, rec := range items {
		if rec.ID != out.Record.ID && rec.PreviousSessionID != nil && *rec.PreviousSessionID == sessionID {
			out.Next = rec
			break
		}
	}
	return out, nil
}

// Dashboard gathers due records, pending reminders and recent completions.
func (s *Service) Dashboard(ctx context.Context, clinicID string, now time.Time) (*Dashboard, error) {
	due, err := s.Due(ctx, clinicID, now)
	if err != nil {
		return nil, err
	}
	reminders, err := s.PendingReminders(ctx, clinicID, now)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.RecentCompleted(ctx, clinicID, 10)
	if err != nil {
		return nil, apperror.Store("reassessment.dashboard", err)
	}
	if recent == nil {
		recent = []*Record{}
	}

	d := &Dashboard{Due: due, Reminders: reminders, RecentlyCompleted: recent}
	d.Statistics.TotalDue = len(due)
	d.Statistics.PendingReminders = len(reminders)
	for _, item := range due {
		if item.DaysOverdue > 0 {
			d.Statistics.OverdueCount++
		}
	}
	local := now.In(s.grid.Location())
	for _, r := range recent {
		if r.CompletedAt == nil {
			continue
		}
		c := r.CompletedAt.In(s.grid.Location())
		if c.Year() == local.Year() && c.Month() == local.Month() {
			d.Statistics.CompletedThisMonth++
		}
	}
	return d, nil
}
