package intake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/domain/appointment"
	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/domain/reassessment"
	"github.com/celloxen/intake/internal/domain/report"
	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
)

// -- Clock --

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// -- Workflow Repository --

type workflowRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*workflow.Status
}

func copyStatus(s *workflow.Status) *workflow.Status {
	cp := *s
	cp.Completed = make(map[workflow.Stage]time.Time, len(s.Completed))
	for k, v := range s.Completed {
		cp.Completed[k] = v
	}
	return &cp
}

func (r *workflowRepo) Get(_ context.Context, id uuid.UUID) (*workflow.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, apperror.NotFound("workflow.get", "workflow status")
	}
	return copyStatus(s), nil
}

func (r *workflowRepo) Insert(_ context.Context, s *workflow.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.PatientID]; ok {
		return workflow.ErrVersionConflict
	}
	s.Version = 1
	r.rows[s.PatientID] = copyStatus(s)
	return nil
}

func (r *workflowRepo) Update(_ context.Context, s *workflow.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[s.PatientID]
	if !ok || cur.Version != s.Version {
		return workflow.ErrVersionConflict
	}
	s.Version++
	r.rows[s.PatientID] = copyStatus(s)
	return nil
}

func (r *workflowRepo) ListByStage(_ context.Context, clinicID string, stage workflow.Stage) ([]*workflow.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.Status
	for _, s := range r.rows {
		if s.CurrentStage == stage && (clinicID == "" || s.ClinicID == clinicID) {
			out = append(out, copyStatus(s))
		}
	}
	return out, nil
}

// -- Patients --

type fakePatients struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*patient.Patient
}

func (f *fakePatients) add(p *patient.Patient) {
	f.mu.Lock()
	f.rows[p.ID] = p
	f.mu.Unlock()
}

func (f *fakePatients) Get(_ context.Context, clinicID string, id uuid.UUID) (*patient.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok || p.ClinicID != clinicID {
		return nil, apperror.NotFound("patient.get", "patient")
	}
	cp := *p
	return &cp, nil
}

// -- Assessments --

// fakeAssessments completes sessions with whatever scores and
// contraindications the test set last.
type fakeAssessments struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*assessment.Session
	scores   map[assessment.Category]int
	contra   []assessment.Contraindication
	clock    *testClock
	seq      int
}

func (f *fakeAssessments) setResult(scores map[assessment.Category]int, contra ...assessment.Contraindication) {
	f.mu.Lock()
	f.scores = scores
	f.contra = contra
	f.mu.Unlock()
}

func (f *fakeAssessments) StartSession(_ context.Context, patientID uuid.UUID, clinicID string, mode assessment.Mode) (*assessment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &assessment.Session{
		ID: uuid.New(), PatientID: patientID, ClinicID: clinicID, Mode: mode,
		Status: assessment.SessionInProgress, Contraindications: []assessment.Contraindication{},
		StartedAt: f.clock.Now(),
	}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeAssessments) GetSession(_ context.Context, id uuid.UUID) (*assessment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("assessment.get", "assessment session")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeAssessments) Complete(_ context.Context, id uuid.UUID, _ assessment.PatientAttributes) (*assessment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("assessment.complete", "assessment session")
	}
	if !s.Completed() {
		scores := make(map[assessment.Category]int, len(f.scores))
		total := 0
		for k, v := range f.scores {
			scores[k] = v
			total += v
		}
		f.seq++
		done := f.clock.Now().Add(time.Duration(f.seq) * time.Second)
		s.Scores = &assessment.CategoryScoreSet{Scores: scores, Overall: total / len(assessment.Categories)}
		s.Contraindications = append([]assessment.Contraindication{}, f.contra...)
		s.RequiresClearance = assessment.RequiresClearance(f.contra)
		s.Status = assessment.SessionCompleted
		s.CompletedAt = &done
	}
	cp := *s
	return &cp, nil
}

func (f *fakeAssessments) grant(id uuid.UUID) {
	f.mu.Lock()
	f.sessions[id].ClearanceGranted = true
	f.mu.Unlock()
}

func (f *fakeAssessments) LatestCompleted(_ context.Context, patientID uuid.UUID) (*assessment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *assessment.Session
	for _, s := range f.sessions {
		if s.PatientID != patientID || !s.Completed() {
			continue
		}
		if best == nil || s.CompletedAt.After(*best.CompletedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, apperror.NotFound("assessment.latest", "completed assessment")
	}
	cp := *best
	return &cp, nil
}

func (f *fakeAssessments) ListSessions(_ context.Context, patientID uuid.UUID) ([]*assessment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*assessment.Session
	for _, s := range f.sessions {
		if s.PatientID == patientID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -- Iris Repository --

type irisRepo struct {
	mu   sync.Mutex
	rows []*iris.Finding
}

func (r *irisRepo) Insert(_ context.Context, f *iris.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.ID = uuid.New()
	cp := *f
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *irisRepo) Latest(_ context.Context, patientID uuid.UUID) (*iris.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].PatientID == patientID {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("iris.latest", "iris finding")
}

// -- Report Repository --

type reportRepo struct {
	mu   sync.Mutex
	rows []*report.Report
}

func (r *reportRepo) Insert(_ context.Context, rep *report.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep.ID = uuid.New()
	cp := *rep
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *reportRepo) GetByID(_ context.Context, id uuid.UUID) (*report.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.rows {
		if rep.ID == id {
			cp := *rep
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("report.get", "report")
}

func (r *reportRepo) Latest(_ context.Context, patientID uuid.UUID) (*report.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].PatientID == patientID {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("report.latest", "report")
}

// -- Appointment Repository --

type appointmentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*appointment.Appointment
}

func (r *appointmentRepo) InsertBatch(_ context.Context, appts []*appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range appts {
		a.ID = uuid.New()
		cp := *a
		r.rows[a.ID] = &cp
	}
	return nil
}

func (r *appointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, apperror.NotFound("appointment.get", "appointment")
	}
	cp := *a
	return &cp, nil
}

func (r *appointmentRepo) filter(keep func(*appointment.Appointment) bool) []*appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.rows {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *appointmentRepo) ListScheduled(_ context.Context, clinicID string, from, to time.Time) ([]*appointment.Appointment, error) {
	return r.filter(func(a *appointment.Appointment) bool {
		return a.ClinicID == clinicID && a.Status == appointment.StatusScheduled &&
			!a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to)
	}), nil
}

func (r *appointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*appointment.Appointment, error) {
	return r.filter(func(a *appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *appointmentRepo) Reschedule(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].ScheduledAt = at
	return nil
}

func (r *appointmentRepo) UpdateStatus(_ context.Context, clinicID string, ids []uuid.UUID, status string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if a, ok := r.rows[id]; ok && a.ClinicID == clinicID {
			a.Status = status
			n++
		}
	}
	return n, nil
}

// -- Reassessment Repository --

type reassessmentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*reassessment.Record
}

func copyRecord(r *reassessment.Record) *reassessment.Record {
	cp := *r
	cp.RemindersSent = append([]int{}, r.RemindersSent...)
	return &cp
}

func (r *reassessmentRepo) Insert(_ context.Context, rec *reassessment.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.PatientID == rec.PatientID && existing.Status == reassessment.StatusScheduled {
			return reassessment.ErrOpenRecordExists
		}
	}
	rec.ID = uuid.New()
	rec.Status = reassessment.StatusScheduled
	r.rows[rec.ID] = copyRecord(rec)
	return nil
}

func (r *reassessmentRepo) GetByID(_ context.Context, id uuid.UUID) (*reassessment.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, apperror.NotFound("reassessment.get", "reassessment")
	}
	return copyRecord(rec), nil
}

func (r *reassessmentRepo) Open(_ context.Context, patientID uuid.UUID) (*reassessment.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.rows {
		if rec.PatientID == patientID && rec.Status == reassessment.StatusScheduled {
			return copyRecord(rec), nil
		}
	}
	return nil, apperror.NotFound("reassessment.open", "scheduled reassessment")
}

func (r *reassessmentRepo) filter(keep func(*reassessment.Record) bool) []*reassessment.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reassessment.Record
	for _, rec := range r.rows {
		if keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *reassessmentRepo) ListOpen(_ context.Context, clinicID string) ([]*reassessment.Record, error) {
	return r.filter(func(rec *reassessment.Record) bool {
		return (clinicID == "" || rec.ClinicID == clinicID) && rec.Status == reassessment.StatusScheduled
	}), nil
}

func (r *reassessmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*reassessment.Record, error) {
	return r.filter(func(rec *reassessment.Record) bool { return rec.PatientID == patientID }), nil
}

func (r *reassessmentRepo) RecentCompleted(_ context.Context, clinicID string, limit int) ([]*reassessment.Record, error) {
	out := r.filter(func(rec *reassessment.Record) bool {
		return rec.ClinicID == clinicID && rec.Status == reassessment.StatusCompleted
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *reassessmentRepo) Complete(_ context.Context, rec *reassessment.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[rec.ID]
	if !ok || cur.Status != reassessment.StatusScheduled {
		return apperror.Integrity("reassessment.complete", "reassessment %s is not scheduled", rec.ID)
	}
	cp := copyRecord(rec)
	cp.Status = reassessment.StatusCompleted
	r.rows[rec.ID] = cp
	return nil
}

func (r *reassessmentRepo) SetRemindersSent(_ context.Context, id uuid.UUID, offsets []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return apperror.NotFound("reassessment.reminders", "reassessment")
	}
	rec.RemindersSent = append([]int{}, offsets...)
	return nil
}
