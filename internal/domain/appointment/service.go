package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/internal/platform/scheduling"
)

const (
	DefaultPlanSessions = 10
	DefaultPerWeek      = 2
	maxSlotWindowDays   = 31
)

// ConflictError lists the requested slots that were already taken. It
// unwraps to a data integrity error.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	times := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		times[i] = c.At.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%d requested slots are already taken: %s", len(e.Conflicts), strings.Join(times, ", "))
}

func (e *ConflictError) Unwrap() error {
	return apperror.Integrity("appointment.bulk_create", "slot conflict")
}

// PlanRequest describes a run of therapy sessions to lay out on the grid.
type PlanRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	TherapyCode     string    `json:"therapy_code"`
	DurationMinutes int       `json:"duration_minutes"`
	Start           time.Time `json:"start"`
	Sessions        int       `json:"sessions"`
	PerWeek         int       `json:"per_week"`
	PreferredTime   string    `json:"preferred_time"`
}

type Service struct {
	repo   Repository
	grid   *scheduling.Grid
	logger zerolog.Logger
}

func NewService(repo Repository, grid *scheduling.Grid, logger zerolog.Logger) *Service {
	return &Service{repo: repo, grid: grid, logger: logger.With().Str("component", "appointment").Logger()}
}

// BulkCreate validates every item, rejects the whole batch on any slot
// conflict and otherwise stores all appointments for the session's clinic.
func (s *Service) BulkCreate(ctx context.Context, sess auth.Session, appts []*Appointment) (*BulkResult, error) {
	if len(appts) == 0 {
		return nil, apperror.Validation("appointment.bulk_create", "no appointments to create")
	}
	if sess.ClinicID == "" {
		return nil, apperror.Validation("appointment.bulk_create", "clinic id is required")
	}

	from, to := appts[0].ScheduledAt, appts[0].ScheduledAt
	for i, a := range appts {
		if err := s.validate(i+1, a); err != nil {
			return nil, err
		}
		a.ClinicID = sess.ClinicID
		a.Status = StatusScheduled
		if a.ScheduledAt.Before(from) {
			from = a.ScheduledAt
		}
		if a.ScheduledAt.After(to) {
			to = a.ScheduledAt
		}
	}

	existing, err := s.repo.ListScheduled(ctx, sess.ClinicID, from, to)
	if err != nil {
		return nil, apperror.Transient("appointment.bulk_create", err)
	}
	if conflicts := findConflicts(appts, existing); len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}

	if err := s.repo.InsertBatch(ctx, appts); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, apperror.Integrity("appointment.bulk_create", "a requested slot was booked concurrently")
		}
		return nil, apperror.Transient("appointment.bulk_create", err)
	}

	s.logger.Info().
		Str("clinic_id", sess.ClinicID).
		Str("user_id", sess.UserID).
		Int("count", len(appts)).
		Time("from", from).
		Time("to", to).
		Msg("bulk appointments created")

	return &BulkResult{
		Count:        len(appts),
		Appointments: appts,
		From:         from,
		To:           to,
		Message:      fmt.Sprintf("Created %d appointments", len(appts)),
	}, nil
}

func (s *Service) validate(n int, a *Appointment) error {
	const op = "appointment.bulk_create"
	if a.PatientID == uuid.Nil {
		return apperror.Validation(op, "appointment %d missing patient_id", n)
	}
	if a.ScheduledAt.IsZero() {
		return apperror.Validation(op, "appointment %d missing scheduled_at", n)
	}
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	if a.Type == "" {
		return apperror.Validation(op, "appointment %d missing appointment_type", n)
	}
	if !validTypes[a.Type] {
		return apperror.Validation(op, "appointment %d has invalid appointment_type %q", n, a.Type)
	}
	if err := s.grid.Validate(a.ScheduledAt); err != nil {
		return apperror.Validation(op, "appointment %d at %s: %v", n, a.ScheduledAt.Format(time.RFC3339), err)
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = int(s.grid.SlotLength() / time.Minute)
	}
	return nil
}

func findConflicts(appts, existing []*Appointment) []Conflict {
	taken := make(map[int64]bool, len(existing)+len(appts))
	for _, e := range existing {
		taken[e.ScheduledAt.Unix()] = true
	}
	var out []Conflict
	for i, a := range appts {
		key := a.ScheduledAt.Unix()
		if taken[key] {
			out = append(out, Conflict{Index: i + 1, At: a.ScheduledAt})
			continue
		}
		taken[key] = true
	}
	return out
}

// BusySlots returns the start times of scheduled appointments in [from, to].
func (s *Service) BusySlots(ctx context.Context, clinicID string, from, to time.Time) ([]time.Time, error) {
	appts, err := s.repo.ListScheduled(ctx, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(appts))
	for i, a := range appts {
		out[i] = a.ScheduledAt
	}
	return out, nil
}

// Slots returns the free grid slots between from and to.
func (s *Service) Slots(ctx context.Context, clinicID string, from, to time.Time) ([]scheduling.Slot, error) {
	if !to.After(from) {
		return nil, apperror.Validation("appointment.slots", "to must be after from")
	}
	if to.Sub(from) > maxSlotWindowDays*24*time.Hour {
		return nil, apperror.Validation("appointment.slots", "window cannot exceed %d days", maxSlotWindowDays)
	}
	busy, err := s.BusySlots(ctx, clinicID, from, to)
	if err != nil {
		return nil, apperror.Transient("appointment.slots", err)
	}
	return s.grid.Available(from, to, busy), nil
}

// Plan lays a run of sessions onto free grid slots without storing them.
// Sessions are spread evenly across each week: two a week leaves three days
// between visits, three a week leaves two.
func (s *Service) Plan(ctx context.Context, clinicID string, req PlanRequest) ([]*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperror.Validation("appointment.plan", "patient id is required")
	}
	if req.Sessions <= 0 {
		req.Sessions = DefaultPlanSessions
	}
	if req.PerWeek <= 0 {
		req.PerWeek = DefaultPerWeek
	}
	if req.PerWeek > 5 {
		return nil, apperror.Validation("appointment.plan", "at most 5 sessions per week")
	}
	if req.Start.IsZero() {
		return nil, apperror.Validation("appointment.plan", "start is required")
	}
	gap := 7 / req.PerWeek

	horizon := req.Start.AddDate(0, 0, req.Sessions*gap+14)
	busy, err := s.BusySlots(ctx, clinicID, req.Start, horizon)
	if err != nil {
		s.logger.Warn().Err(err).Str("clinic_id", clinicID).Msg("busy slots unavailable, planning on an empty grid")
		busy = nil
	}

	cursor := req.Start
	out := make([]*Appointment, 0, req.Sessions)
	for len(out) < req.Sessions {
		slot, ok := s.grid.NextAvailable(cursor, busy, req.PreferredTime)
		if !ok {
			return nil, apperror.Integrity("appointment.plan", "no free slot within a week of %s", cursor.Format("2006-01-02"))
		}
		out = append(out, &Appointment{
			PatientID:       req.PatientID,
			ClinicID:        clinicID,
			ScheduledAt:     slot.Start,
			DurationMinutes: req.DurationMinutes,
			Type:            TypeTherapy,
			TherapyCode:     req.TherapyCode,
			Status:          StatusScheduled,
		})
		busy = append(busy, slot.Start)
		y, m, d := slot.Start.In(s.grid.Location()).Date()
		cursor = time.Date(y, m, d, 0, 0, 0, 0, s.grid.Location()).AddDate(0, 0, gap)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, clinicID string, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Store("appointment.get", err)
	}
	if a.ClinicID != clinicID {
		return nil, apperror.NotFound("appointment.get", "appointment")
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID) ([]*Appointment, error) {
	appts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperror.Transient("appointment.list", err)
	}
	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		if a.ClinicID == clinicID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Reschedule moves a scheduled appointment to another free slot.
func (s *Service) Reschedule(ctx context.Context, sess auth.Session, id uuid.UUID, at time.Time) (*Appointment, error) {
	const op = "appointment.reschedule"
	a, err := s.Get(ctx, sess.ClinicID, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, apperror.Validation(op, "only scheduled appointments can be rescheduled, status is %s", a.Status)
	}
	if err := s.grid.Validate(at); err != nil {
		return nil, apperror.Validation(op, "%v", err)
	}

	existing, err := s.repo.ListScheduled(ctx, sess.ClinicID, at, at)
	if err != nil {
		return nil, apperror.Transient(op, err)
	}
	for _, e := range existing {
		if e.ID != id {
			return nil, apperror.Integrity(op, "%v", ErrSlotTaken)
		}
	}

	if err := s.repo.Reschedule(ctx, id, at); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, apperror.Integrity(op, "%v", ErrSlotTaken)
		}
		return nil, apperror.Store(op, err)
	}
	s.logger.Info().Str("appointment_id", id.String()).Time("from", a.ScheduledAt).Time("to", at).Msg("appointment rescheduled")
	a.ScheduledAt = at
	return a, nil
}

// UpdateStatus sets the status of several appointments at once and returns
// how many belonged to the clinic and were changed.
func (s *Service) UpdateStatus(ctx context.Context, sess auth.Session, ids []uuid.UUID, status string) (int, error) {
	const op = "appointment.update_status"
	if len(ids) == 0 {
		return 0, apperror.Validation(op, "no appointment ids given")
	}
	if !validStatuses[status] {
		return 0, apperror.Validation(op, "invalid status: %s", status)
	}
	n, err := s.repo.UpdateStatus(ctx, sess.ClinicID, ids, status)
	if err != nil {
		return 0, apperror.Transient(op, err)
	}
	s.logger.Info().Str("clinic_id", sess.ClinicID).Str("status", status).Int("count", n).Msg("appointment status updated")
	return n, nil
}
