// Package intake drives a patient through the assessment-to-treatment
// pipeline. Each step does its domain work first and then advances the
// workflow; notifications go out last and never undo a step.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/domain/appointment"
	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/domain/reassessment"
	"github.com/celloxen/intake/internal/domain/report"
	"github.com/celloxen/intake/internal/domain/therapy"
	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/internal/platform/notification"
)

type Workflow interface {
	Status(ctx context.Context, patientID uuid.UUID) *workflow.Status
	Advance(ctx context.Context, sess auth.Session, patientID uuid.UUID, target string) bool
	SweepDue(ctx context.Context, sess auth.Session, clinicID string) (int, error)
}

type Patients interface {
	Get(ctx context.Context, clinicID string, id uuid.UUID) (*patient.Patient, error)
}

type Assessments interface {
	StartSession(ctx context.Context, patientID uuid.UUID, clinicID string, mode assessment.Mode) (*assessment.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*assessment.Session, error)
	Complete(ctx context.Context, sessionID uuid.UUID, attrs assessment.PatientAttributes) (*assessment.Session, error)
	LatestCompleted(ctx context.Context, patientID uuid.UUID) (*assessment.Session, error)
	ListSessions(ctx context.Context, patientID uuid.UUID) ([]*assessment.Session, error)
}

type IrisFindings interface {
	Save(ctx context.Context, sess auth.Session, f *iris.Finding) error
	Latest(ctx context.Context, patientID uuid.UUID) (*iris.Finding, error)
}

type Reports interface {
	Generate(ctx context.Context, p *patient.Patient, sess *assessment.Session, finding *iris.Finding) (*report.Report, error)
	Latest(ctx context.Context, clinicID string, patientID uuid.UUID) (*report.Report, error)
	Render(r *report.Report) ([]byte, error)
}

type Appointments interface {
	Plan(ctx context.Context, clinicID string, req appointment.PlanRequest) ([]*appointment.Appointment, error)
	BulkCreate(ctx context.Context, sess auth.Session, appts []*appointment.Appointment) (*appointment.BulkResult, error)
}

type Reassessments interface {
	Schedule(ctx context.Context, patientID uuid.UUID, clinicID string, from time.Time, previousSessionID *uuid.UUID) (*reassessment.Record, error)
	Open(ctx context.Context, patientID uuid.UUID) (*reassessment.Record, error)
	Complete(ctx context.Context, patientID, sessionID uuid.UUID, previous, current reassessment.Snapshot) (*reassessment.Outcome, error)
	CompletedBy(ctx context.Context, patientID, sessionID uuid.UUID) (*reassessment.Outcome, error)
	Due(ctx context.Context, clinicID string, now time.Time) ([]reassessment.DueItem, error)
	PendingReminders(ctx context.Context, clinicID string, now time.Time) ([]reassessment.Reminder, error)
	MarkReminderSent(ctx context.Context, recordID uuid.UUID, offset int) error
}

type Notifier interface {
	Send(ctx context.Context, n *notification.Notification) bool
	Dispatch(ctx context.Context, n *notification.Notification)
}

// Deps are the services the coordinator drives.
type Deps struct {
	Workflow      Workflow
	Patients      Patients
	Assessments   Assessments
	Iris          IrisFindings
	Reports       Reports
	Appointments  Appointments
	Reassessments Reassessments
	Notifier      Notifier
	ClinicName    string
}

type Coordinator struct {
	Deps
	logger zerolog.Logger
	now    func() time.Time
}

func NewCoordinator(d Deps, logger zerolog.Logger) *Coordinator {
	if d.ClinicName == "" {
		d.ClinicName = "the clinic"
	}
	return &Coordinator{Deps: d, logger: logger.With().Str("component", "intake").Logger(), now: time.Now}
}

// Step is the workflow state after an operation.
type Step struct {
	Advanced bool             `json:"advanced"`
	Workflow *workflow.Status `json:"workflow"`
}

func (c *Coordinator) advance(ctx context.Context, sess auth.Session, patientID uuid.UUID, to workflow.Stage) Step {
	ok := c.Workflow.Advance(ctx, sess, patientID, string(to))
	if !ok {
		c.logger.Warn().Str("patient_id", patientID.String()).Str("target", string(to)).Msg("workflow did not advance")
	}
	return Step{Advanced: ok, Workflow: c.Workflow.Status(ctx, patientID)}
}

func (c *Coordinator) requireStage(ctx context.Context, op string, patientID uuid.UUID, allowed ...workflow.Stage) (*workflow.Status, error) {
	st := c.Workflow.Status(ctx, patientID)
	for _, s := range allowed {
		if st.CurrentStage == s {
			return st, nil
		}
	}
	return nil, apperror.Validation(op, "patient is in stage %s", st.CurrentStage)
}

// StartAssessment opens the initial health assessment.
func (c *Coordinator) StartAssessment(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*assessment.Session, Step, error) {
	const op = "intake.start_assessment"
	if _, err := c.Patients.Get(ctx, sess.ClinicID, patientID); err != nil {
		return nil, Step{}, err
	}
	st, err := c.requireStage(ctx, op, patientID, workflow.StageRegistered, workflow.StageHealthAssessment)
	if err != nil {
		return nil, Step{}, err
	}
	as, err := c.Assessments.StartSession(ctx, patientID, sess.ClinicID, assessment.ModeInitial)
	if err != nil {
		return nil, Step{}, err
	}
	if st.CurrentStage == workflow.StageRegistered {
		return as, c.advance(ctx, sess, patientID, workflow.StageHealthAssessment), nil
	}
	return as, Step{Workflow: st}, nil
}

// CompletionResult is returned when an assessment session closes. Outcome
// is set for reassessment sessions only.
type CompletionResult struct {
	Session *assessment.Session   `json:"session"`
	Outcome *reassessment.Outcome `json:"outcome,omitempty"`
	Step
}

// CompleteAssessment scores a session and moves the patient on: an initial
// assessment leads to the iris assessment, a reassessment to whatever its
// comparison decides.
func (c *Coordinator) CompleteAssessment(ctx context.Context, sess auth.Session, sessionID uuid.UUID) (*CompletionResult, error) {
	as, err := c.Assessments.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if as.ClinicID != sess.ClinicID {
		return nil, apperror.NotFound("intake.complete_assessment", "assessment session")
	}
	p, err := c.Patients.Get(ctx, sess.ClinicID, as.PatientID)
	if err != nil {
		return nil, err
	}
	if as.Mode == assessment.ModeReassessment && as.Completed() {
		// a repeat returns the recorded decision whatever the stage is now
		out, err := c.Reassessments.CompletedBy(ctx, p.ID, as.ID)
		if err == nil {
			return &CompletionResult{Session: as, Outcome: out, Step: Step{Workflow: c.Workflow.Status(ctx, p.ID)}}, nil
		}
		if !apperror.Is(err, apperror.KindNotFound) {
			return nil, err
		}
	}
	if as.Mode == assessment.ModeReassessment {
		if _, err := c.requireStage(ctx, "intake.complete_reassessment", p.ID, workflow.StageReassessment); err != nil {
			return nil, err
		}
	}
	done, err := c.Assessments.Complete(ctx, sessionID, p.Attributes())
	if err != nil {
		return nil, err
	}
	if done.Mode == assessment.ModeReassessment {
		return c.completeReassessment(ctx, sess, done)
	}

	res := &CompletionResult{Session: done}
	if st := c.Workflow.Status(ctx, p.ID); st.CurrentStage == workflow.StageHealthAssessment {
		res.Step = c.advance(ctx, sess, p.ID, workflow.StageIrisAssessment)
	} else {
		res.Workflow = st
	}
	if done.RequiresClearance {
		c.logger.Warn().
			Str("patient_id", p.ID.String()).
			Int("contraindications", len(done.Contraindications)).
			Msg("assessment requires physician clearance")
	}
	return res, nil
}

// RecordIris stores the iris finding and moves on to report generation.
func (c *Coordinator) RecordIris(ctx context.Context, sess auth.Session, f *iris.Finding) (Step, error) {
	if _, err := c.Patients.Get(ctx, sess.ClinicID, f.PatientID); err != nil {
		return Step{}, err
	}
	if _, err := c.requireStage(ctx, "intake.record_iris", f.PatientID, workflow.StageIrisAssessment); err != nil {
		return Step{}, err
	}
	if err := c.Iris.Save(ctx, sess, f); err != nil {
		return Step{}, err
	}
	return c.advance(ctx, sess, f.PatientID, workflow.StageReportGeneration), nil
}

// ReportRequest controls report generation. SkipIris must be set to build
// the report while the iris assessment is still outstanding.
type ReportRequest struct {
	SkipIris bool `json:"skip_iris"`
}

type ReportResult struct {
	Report *report.Report `json:"report"`
	Step
}

// GenerateReport builds the wellness report from the latest completed
// assessment and iris finding. In IRIS_ASSESSMENT it only runs when the
// request skips the iris step.
func (c *Coordinator) GenerateReport(ctx context.Context, sess auth.Session, patientID uuid.UUID, req ReportRequest) (*ReportResult, error) {
	const op = "intake.generate_report"
	p, err := c.Patients.Get(ctx, sess.ClinicID, patientID)
	if err != nil {
		return nil, err
	}
	st, err := c.requireStage(ctx, op, patientID, workflow.StageIrisAssessment, workflow.StageReportGeneration)
	if err != nil {
		return nil, err
	}
	if st.CurrentStage == workflow.StageIrisAssessment && !req.SkipIris {
		return nil, apperror.Validation(op, "iris assessment not recorded, set skip_iris to report without it")
	}
	as, err := c.Assessments.LatestCompleted(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var finding *iris.Finding
	if st.CurrentStage == workflow.StageIrisAssessment {
		c.logger.Info().Str("patient_id", patientID.String()).Str("user_id", sess.UserID).Msg("iris assessment skipped")
		c.advance(ctx, sess, patientID, workflow.StageReportGeneration)
	} else {
		finding, err = c.Iris.Latest(ctx, patientID)
		if apperror.Is(err, apperror.KindNotFound) {
			finding, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	r, err := c.Reports.Generate(ctx, p, as, finding)
	if err != nil {
		return nil, err
	}
	res := &ReportResult{Report: r, Step: c.advance(ctx, sess, patientID, workflow.StageTreatmentPlanning)}
	c.sendReport(ctx, p, r)
	return res, nil
}

func (c *Coordinator) sendReport(ctx context.Context, p *patient.Patient, r *report.Report) {
	if p.Email == "" {
		c.logger.Info().Str("patient_id", p.ID.String()).Msg("no email on file, report not sent")
		return
	}
	n := &notification.Notification{
		ClinicID:   p.ClinicID,
		Recipient:  p.Email,
		TemplateID: notification.TemplateReportReady,
		TemplateData: map[string]string{
			"patient_name":  p.FullName(),
			"clinic_name":   c.ClinicName,
			"overall_score": fmt.Sprint(r.Scores.Overall),
			"therapy_count": fmt.Sprint(len(r.Therapies)),
		},
	}
	if data, err := c.Reports.Render(r); err != nil {
		c.logger.Error().Err(err).Str("report_id", r.ID.String()).Msg("report render failed, sending without attachment")
	} else {
		n.Attachments = []notification.Attachment{{Filename: report.Filename(r), ContentType: report.XLSXContentType, Content: data}}
	}
	c.Notifier.Dispatch(ctx, n)
}

// PlanConfirmation is the practitioner's treatment plan. Without explicit
// appointments a run of sessions is planned for TherapyCode, defaulting to
// the report's first recommendation.
type PlanConfirmation struct {
	Appointments  []*appointment.Appointment `json:"appointments"`
	TherapyCode   string                     `json:"therapy_code"`
	Start         time.Time                  `json:"start"`
	PerWeek       int                        `json:"per_week"`
	PreferredTime string                     `json:"preferred_time"`
}

type ConfirmResult struct {
	Appointments *appointment.BulkResult `json:"appointments"`
	Reassessment *reassessment.Record    `json:"reassessment,omitempty"`
	Step
}

// ConfirmTreatmentPlan books the plan's appointments, puts the patient into
// treatment and schedules the first reassessment. A report that requires
// clearance blocks confirmation until a physician grants it.
func (c *Coordinator) ConfirmTreatmentPlan(ctx context.Context, sess auth.Session, patientID uuid.UUID, req PlanConfirmation) (*ConfirmResult, error) {
	const op = "intake.confirm_plan"
	p, err := c.Patients.Get(ctx, sess.ClinicID, patientID)
	if err != nil {
		return nil, err
	}
	if _, err := c.requireStage(ctx, op, patientID, workflow.StageTreatmentPlanning); err != nil {
		return nil, err
	}
	r, err := c.Reports.Latest(ctx, sess.ClinicID, patientID)
	if err != nil {
		return nil, err
	}
	if r.RequiresClearance {
		as, err := c.Assessments.GetSession(ctx, r.SessionID)
		if err != nil {
			return nil, err
		}
		if !as.Cleared() {
			return nil, apperror.Validation(op, "physician clearance is required before treatment can be scheduled")
		}
	}

	appts := req.Appointments
	if len(appts) == 0 {
		appts, err = c.planFromReport(ctx, sess, p, r, req)
		if err != nil {
			return nil, err
		}
	}
	for _, a := range appts {
		a.PatientID = patientID
	}
	booked, err := c.Appointments.BulkCreate(ctx, sess, appts)
	if err != nil {
		return nil, err
	}

	c.advance(ctx, sess, patientID, workflow.StageTreatmentScheduling)
	res := &ConfirmResult{Appointments: booked, Step: c.advance(ctx, sess, patientID, workflow.StageInTreatment)}

	rec, err := c.Reassessments.Schedule(ctx, patientID, sess.ClinicID, c.now(), &r.SessionID)
	if err != nil {
		// the cycle timer still brings the patient back for reassessment
		c.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("first reassessment not scheduled")
	}
	res.Reassessment = rec

	c.sendSchedule(ctx, p, booked, rec)
	return res, nil
}

func (c *Coordinator) planFromReport(ctx context.Context, sess auth.Session, p *patient.Patient, r *report.Report, req PlanConfirmation) ([]*appointment.Appointment, error) {
	code := req.TherapyCode
	if code == "" {
		if len(r.Therapies) == 0 {
			return nil, apperror.Validation("intake.confirm_plan", "report has no therapies to plan")
		}
		code = r.Therapies[0].Code
	}
	t, ok := therapy.Lookup(code)
	if !ok {
		return nil, apperror.Validation("intake.confirm_plan", "unknown therapy code %s", code)
	}
	start := req.Start
	if start.IsZero() {
		start = c.now()
	}
	return c.Appointments.Plan(ctx, sess.ClinicID, appointment.PlanRequest{
		PatientID:       p.ID,
		TherapyCode:     t.Code,
		DurationMinutes: t.DurationMinutes,
		Start:           start,
		Sessions:        therapy.DefaultTotalSessions,
		PerWeek:         req.PerWeek,
		PreferredTime:   req.PreferredTime,
	})
}

func (c *Coordinator) sendSchedule(ctx context.Context, p *patient.Patient, booked *appointment.BulkResult, rec *reassessment.Record) {
	if p.Email == "" {
		return
	}
	lines := make([]string, len(booked.Appointments))
	for i, a := range booked.Appointments {
		lines[i] = fmt.Sprintf("%d. %s %s", i+1, a.ScheduledAt.Format("Mon 02 Jan 2006 15:04"), a.TherapyCode)
	}
	reassessOn := "to be confirmed"
	if rec != nil {
		reassessOn = rec.ScheduledAt.Format("Mon 02 Jan 2006 15:04")
	}
	c.Notifier.Dispatch(ctx, &notification.Notification{
		ClinicID:   p.ClinicID,
		Recipient:  p.Email,
		TemplateID: notification.TemplateTreatmentSchedule,
		TemplateData: map[string]string{
			"patient_name":      p.FullName(),
			"clinic_name":       c.ClinicName,
			"session_count":     fmt.Sprint(booked.Count),
			"first_session":     booked.From.Format("Mon 02 Jan 2006 15:04"),
			"schedule":          strings.Join(lines, "\n"),
			"reassessment_date": reassessOn,
		},
	})
}

// StartReassessment opens a reassessment session, moving an in-treatment
// patient into REASSESSMENT first.
func (c *Coordinator) StartReassessment(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*assessment.Session, Step, error) {
	const op = "intake.start_reassessment"
	if _, err := c.Patients.Get(ctx, sess.ClinicID, patientID); err != nil {
		return nil, Step{}, err
	}
	st, err := c.requireStage(ctx, op, patientID, workflow.StageInTreatment, workflow.StageReassessment)
	if err != nil {
		return nil, Step{}, err
	}
	step := Step{Workflow: st}
	if st.CurrentStage == workflow.StageInTreatment {
		step = c.advance(ctx, sess, patientID, workflow.StageReassessment)
	}
	as, err := c.Assessments.StartSession(ctx, patientID, sess.ClinicID, assessment.ModeReassessment)
	if err != nil {
		return nil, Step{}, err
	}
	return as, step, nil
}

func (c *Coordinator) completeReassessment(ctx context.Context, sess auth.Session, done *assessment.Session) (*CompletionResult, error) {
	patientID := done.PatientID
	rec, err := c.Reassessments.Open(ctx, patientID)
	if apperror.Is(err, apperror.KindNotFound) {
		// reached REASSESSMENT without a booked record; book one to close
		rec, err = c.Reassessments.Schedule(ctx, patientID, sess.ClinicID, c.now(), nil)
	}
	if err != nil {
		return nil, err
	}

	previous, err := c.previousSnapshot(ctx, rec, done)
	if err != nil {
		return nil, err
	}
	out, err := c.Reassessments.Complete(ctx, patientID, done.ID, previous, reassessment.SnapshotFromScores(done.Scores))
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Session: done, Outcome: out, Step: c.advance(ctx, sess, patientID, out.NextStage)}, nil
}

// previousSnapshot finds the severity snapshot to compare against: the
// session the open record points at, otherwise the newest other completed
// session of the patient.
func (c *Coordinator) previousSnapshot(ctx context.Context, rec *reassessment.Record, current *assessment.Session) (reassessment.Snapshot, error) {
	if rec.PreviousSessionID != nil {
		prev, err := c.Assessments.GetSession(ctx, *rec.PreviousSessionID)
		if err == nil && prev.Completed() {
			return reassessment.SnapshotFromScores(prev.Scores), nil
		}
		if err != nil && !apperror.Is(err, apperror.KindNotFound) {
			return nil, err
		}
	}
	sessions, err := c.Assessments.ListSessions(ctx, current.PatientID)
	if err != nil {
		return nil, err
	}
	var best *assessment.Session
	for _, s := range sessions {
		if s.ID == current.ID || !s.Completed() || s.CompletedAt == nil {
			continue
		}
		if best == nil || s.CompletedAt.After(*best.CompletedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	return reassessment.SnapshotFromScores(best.Scores), nil
}

// SweepDue moves in-treatment patients whose cycle ran out, or whose booked
// reassessment date has arrived, into REASSESSMENT. An empty clinic sweeps
// every clinic.
func (c *Coordinator) SweepDue(ctx context.Context, clinicID string) (int, error) {
	moved, err := c.Workflow.SweepDue(ctx, auth.System(clinicID), clinicID)
	if err != nil {
		return 0, err
	}
	due, err := c.Reassessments.Due(ctx, clinicID, c.now())
	if err != nil {
		return moved, err
	}
	for _, item := range due {
		id := item.Record.PatientID
		if c.Workflow.Status(ctx, id).CurrentStage != workflow.StageInTreatment {
			continue
		}
		if c.Workflow.Advance(ctx, auth.System(item.Record.ClinicID), id, string(workflow.StageReassessment)) {
			moved++
		}
	}
	if moved > 0 {
		c.logger.Info().Str("clinic_id", clinicID).Int("moved", moved).Msg("patients moved to reassessment")
	}
	return moved, nil
}

// SendReminders emails every pending reassessment reminder and marks the
// ones that went out. It returns how many were sent.
func (c *Coordinator) SendReminders(ctx context.Context, clinicID string) (int, error) {
	reminders, err := c.Reassessments.PendingReminders(ctx, clinicID, c.now())
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rem := range reminders {
		rec := rem.Record
		p, err := c.Patients.Get(ctx, rec.ClinicID, rec.PatientID)
		if err != nil {
			c.logger.Warn().Err(err).Str("patient_id", rec.PatientID.String()).Msg("reminder skipped, patient not loaded")
			continue
		}
		if p.Email == "" {
			continue
		}
		ok := c.Notifier.Send(ctx, &notification.Notification{
			ClinicID:   rec.ClinicID,
			Recipient:  p.Email,
			TemplateID: notification.TemplateReassessmentReminder,
			TemplateData: map[string]string{
				"patient_name":   p.FullName(),
				"clinic_name":    c.ClinicName,
				"reminder":       rem.Message(),
				"scheduled_date": rec.ScheduledAt.Format("Mon 02 Jan 2006 15:04"),
			},
		})
		if !ok {
			continue
		}
		if err := c.Reassessments.MarkReminderSent(ctx, rec.ID, rem.DaysBefore); err != nil {
			c.logger.Error().Err(err).Str("reassessment_id", rec.ID.String()).Msg("reminder sent but not recorded")
			continue
		}
		sent++
	}
	return sent, nil
}
