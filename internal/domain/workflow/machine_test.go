package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/audit"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/internal/platform/cache"
)

// -- Mock Repository --

type mockRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*Status
	down    bool
	inserts int
	updates int
	// beforeUpdate runs once, under the lock, before the version check
	beforeUpdate func(rows map[uuid.UUID]*Status)
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[uuid.UUID]*Status)}
}

var errStoreDown = errors.New("dial tcp 10.0.0.5:5432: connection refused")

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	s, ok := m.rows[id]
	if !ok {
		return nil, apperror.NotFound("workflow.get", "workflow status")
	}
	return s.clone(), nil
}

func (m *mockRepo) Insert(_ context.Context, s *Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	if _, ok := m.rows[s.PatientID]; ok {
		return ErrVersionConflict
	}
	s.Version = 1
	m.rows[s.PatientID] = s.clone()
	m.inserts++
	return nil
}

func (m *mockRepo) Update(_ context.Context, s *Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook(m.rows)
	}
	cur, ok := m.rows[s.PatientID]
	if !ok || cur.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	m.rows[s.PatientID] = s.clone()
	m.updates++
	return nil
}

func (m *mockRepo) ListByStage(_ context.Context, clinicID string, stage Stage) ([]*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	var out []*Status
	for _, s := range m.rows {
		if s.CurrentStage == stage && (clinicID == "" || s.ClinicID == clinicID) {
			out = append(out, s.clone())
		}
	}
	return out, nil
}

func (m *mockRepo) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *mockRepo) stored(id uuid.UUID) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		return s.clone()
	}
	return nil
}

// -- Capturing audit sink --

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Record(_ context.Context, e audit.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *captureSink) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var testSession = auth.Session{UserID: "practitioner-1", ClinicID: "clinic-1", Roles: []string{"practitioner"}}

type fixture struct {
	repo  *mockRepo
	sink  *captureSink
	now   time.Time
	m     *Machine
	cache *cache.Store
}

func newFixture() *fixture {
	f := &fixture{
		repo:  newMockRepo(),
		sink:  &captureSink{},
		now:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		cache: cache.New(cache.Options{Logger: zerolog.Nop()}),
	}
	f.m = NewMachine(f.repo, f.cache, zerolog.Nop(), Options{
		Audit: f.sink,
		Now:   func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) advanceAll(t *testing.T, id uuid.UUID, stages ...Stage) {
	t.Helper()
	for _, s := range stages {
		if !f.m.Advance(context.Background(), testSession, id, string(s)) {
			t.Fatalf("advance to %s failed", s)
		}
	}
}

// -- Tests --

func TestStart_CreatesRegistered(t *testing.T) {
	f := newFixture()
	id := uuid.New()

	st, err := f.m.Start(context.Background(), testSession, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.CurrentStage != StageRegistered || st.Version != 1 || st.ClinicID != "clinic-1" {
		t.Errorf("unexpected status %+v", st)
	}
	if f.repo.inserts != 1 {
		t.Errorf("expected 1 insert, got %d", f.repo.inserts)
	}
}

func TestStart_Idempotent(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()

	if _, err := f.m.Start(ctx, testSession, id); err != nil {
		t.Fatal(err)
	}
	f.advanceAll(t, id, StageHealthAssessment)

	st, err := f.m.Start(ctx, testSession, id)
	if err != nil {
		t.Fatal(err)
	}
	if st.CurrentStage != StageHealthAssessment {
		t.Errorf("restart must not reset the stage, got %s", st.CurrentStage)
	}
	if f.repo.inserts != 1 {
		t.Errorf("expected a single insert, got %d", f.repo.inserts)
	}
}

func TestStart_RequiresClinic(t *testing.T) {
	f := newFixture()
	_, err := f.m.Start(context.Background(), auth.Session{UserID: "u"}, uuid.New())
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdvance_FullPipeline(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)

	f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment, StageReportGeneration,
		StageTreatmentPlanning, StageTreatmentScheduling, StageInTreatment)

	st := f.m.Status(context.Background(), id)
	if st.CurrentStage != StageInTreatment {
		t.Fatalf("expected IN_TREATMENT, got %s", st.CurrentStage)
	}
	for _, s := range []Stage{StageRegistered, StageHealthAssessment, StageIrisAssessment, StageReportGeneration, StageTreatmentPlanning, StageTreatmentScheduling} {
		if !st.IsCompleted(s) {
			t.Errorf("expected %s to be marked complete", s)
		}
	}
	if st.CycleStartedAt == nil {
		t.Error("expected treatment cycle start to be recorded")
	}
	if f.repo.stored(id).Version != 7 {
		t.Errorf("expected version 7, got %d", f.repo.stored(id).Version)
	}
}

func TestAdvance_SameTargetTwiceIsNoOp(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)

	f.advanceAll(t, id, StageHealthAssessment, StageHealthAssessment)

	if f.repo.updates != 1 {
		t.Errorf("expected 1 update, got %d", f.repo.updates)
	}
	if got := f.sink.count(audit.KindTransition); got != 2 { // start + one advance
		t.Errorf("expected 2 transition events, got %d", got)
	}
}

func TestAdvance_UnknownStageRejected(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)
	f.advanceAll(t, id, StageHealthAssessment)

	for _, bad := range []string{"treatment_complete", "health_assessment", ""} {
		if f.m.Advance(context.Background(), testSession, id, bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
	if st := f.m.Status(context.Background(), id); st.CurrentStage != StageHealthAssessment {
		t.Errorf("stage changed to %s", st.CurrentStage)
	}
	if f.sink.count(audit.KindRejected) != 3 {
		t.Errorf("expected 3 rejected events, got %d", f.sink.count(audit.KindRejected))
	}
}

func TestAdvance_IllegalTransition(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)

	if f.m.Advance(context.Background(), testSession, id, string(StageInTreatment)) {
		t.Fatal("expected skip to IN_TREATMENT to be rejected")
	}
	if st := f.m.Status(context.Background(), id); st.CurrentStage != StageRegistered {
		t.Errorf("expected REGISTERED, got %s", st.CurrentStage)
	}
}

func TestAdvance_TerminalStageHasNoExit(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)
	f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment, StageReportGeneration,
		StageTreatmentPlanning, StageTreatmentScheduling, StageInTreatment, StageCompleted)

	if f.m.Advance(context.Background(), testSession, id, string(StageInTreatment)) {
		t.Error("expected COMPLETED to be terminal")
	}
}

func TestAdvance_StoreDownKeepsProgress(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()
	_, _ = f.m.Start(ctx, testSession, id)
	f.repo.setDown(true)

	f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment)

	if st := f.m.Status(ctx, id); st.CurrentStage != StageIrisAssessment {
		t.Fatalf("expected cached IRIS_ASSESSMENT, got %s", st.CurrentStage)
	}
	if f.sink.count(audit.KindPersistenceFailure) != 2 {
		t.Errorf("expected 2 persistence failures, got %d", f.sink.count(audit.KindPersistenceFailure))
	}

	// store comes back: the next write carries the whole cached state
	f.repo.setDown(false)
	if st := f.m.Status(ctx, id); st.CurrentStage != StageIrisAssessment {
		t.Fatalf("dirty cache must win over the stale store, got %s", st.CurrentStage)
	}
	f.advanceAll(t, id, StageReportGeneration)

	stored := f.repo.stored(id)
	if stored.CurrentStage != StageReportGeneration || stored.Version != 2 {
		t.Errorf("expected reconciled store at REPORT_GENERATION v2, got %s v%d", stored.CurrentStage, stored.Version)
	}
	if !stored.IsCompleted(StageHealthAssessment) || !stored.IsCompleted(StageIrisAssessment) {
		t.Error("expected completion flags written during outage to reach the store")
	}
}

func TestStart_StoreDown(t *testing.T) {
	f := newFixture()
	f.repo.setDown(true)
	id := uuid.New()

	st, err := f.m.Start(context.Background(), testSession, id)
	if err != nil {
		t.Fatalf("start must not fail when the store is down: %v", err)
	}
	if st.CurrentStage != StageRegistered || st.Version != 0 {
		t.Errorf("unexpected status %+v", st)
	}

	f.repo.setDown(false)
	if n := f.m.Reconcile(context.Background()); n != 1 {
		t.Fatalf("expected 1 reconciled status, got %d", n)
	}
	if f.repo.stored(id) == nil {
		t.Fatal("expected status to be inserted by reconcile")
	}
	if f.m.Reconcile(context.Background()) != 0 {
		t.Error("second reconcile should have nothing to flush")
	}
}

func TestStatus_FallsBackToRegistered(t *testing.T) {
	f := newFixture()
	f.repo.setDown(true)
	id := uuid.New()

	st := f.m.Status(context.Background(), id)
	if st == nil || st.CurrentStage != StageRegistered || st.PatientID != id {
		t.Errorf("expected REGISTERED fallback, got %+v", st)
	}
}

func TestStatus_StoreDownUsesCleanCache(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)
	f.advanceAll(t, id, StageHealthAssessment)
	f.repo.setDown(true)

	if st := f.m.Status(context.Background(), id); st.CurrentStage != StageHealthAssessment {
		t.Errorf("expected cached HEALTH_ASSESSMENT, got %s", st.CurrentStage)
	}
}

func TestAdvance_VersionConflictAlreadyAtTarget(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()
	_, _ = f.m.Start(ctx, testSession, id)

	// another server advances the same patient
	other := NewMachine(f.repo, cache.New(cache.Options{Logger: zerolog.Nop()}), zerolog.Nop(), Options{Audit: &captureSink{}})
	if !other.Advance(ctx, testSession, id, string(StageHealthAssessment)) {
		t.Fatal("other advance failed")
	}

	if !f.m.Advance(ctx, testSession, id, string(StageHealthAssessment)) {
		t.Fatal("expected success when the store already holds the target")
	}
	if v := f.repo.stored(id).Version; v != 2 {
		t.Errorf("expected no extra write, version %d", v)
	}
}

func TestAdvance_VersionConflictReappliesOnce(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()
	_, _ = f.m.Start(ctx, testSession, id)

	other := NewMachine(f.repo, cache.New(cache.Options{Logger: zerolog.Nop()}), zerolog.Nop(), Options{Audit: &captureSink{}})
	other.Advance(ctx, testSession, id, string(StageHealthAssessment))

	// our clean cache is stale (REGISTERED v1) but the store wins on read
	if !f.m.Advance(ctx, testSession, id, string(StageIrisAssessment)) {
		t.Fatal("expected advance from the stored stage to succeed")
	}
	if s := f.repo.stored(id); s.CurrentStage != StageIrisAssessment || s.Version != 3 {
		t.Errorf("unexpected stored status %s v%d", s.CurrentStage, s.Version)
	}
}

func TestAdvance_ConflictDuringWriteReloadsOnce(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()
	_, _ = f.m.Start(ctx, testSession, id)
	f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment)

	// a concurrent writer bumps the version without changing the stage
	f.repo.beforeUpdate = func(rows map[uuid.UUID]*Status) {
		rows[id].Version++
	}
	if !f.m.Advance(ctx, testSession, id, string(StageReportGeneration)) {
		t.Fatal("expected advance to succeed after one reload")
	}
	if s := f.repo.stored(id); s.CurrentStage != StageReportGeneration || s.Version != 5 {
		t.Errorf("unexpected stored status %s v%d", s.CurrentStage, s.Version)
	}
}

func TestAdvance_ConflictStoreAlreadyAtTarget(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	ctx := context.Background()
	_, _ = f.m.Start(ctx, testSession, id)

	f.repo.beforeUpdate = func(rows map[uuid.UUID]*Status) {
		rows[id].apply(StageHealthAssessment, f.now)
		rows[id].Version++
	}
	if !f.m.Advance(ctx, testSession, id, string(StageHealthAssessment)) {
		t.Fatal("expected success when the concurrent writer reached the same stage")
	}
	if f.repo.updates != 0 {
		t.Errorf("expected no write from this machine, got %d", f.repo.updates)
	}
}

func TestAdvance_RestartClearsAssessmentFlags(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)
	f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment, StageReportGeneration,
		StageTreatmentPlanning, StageTreatmentScheduling, StageInTreatment, StageReassessment, StageHealthAssessment)

	st := f.m.Status(context.Background(), id)
	if st.IsCompleted(StageIrisAssessment) || st.IsCompleted(StageReassessment) {
		t.Error("expected assessment flags to be cleared on restart")
	}
	if !st.IsCompleted(StageRegistered) {
		t.Error("registration stays complete")
	}
	if st.CycleStartedAt != nil {
		t.Error("expected treatment cycle to be cleared")
	}
}

func TestSweepDue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	due, fresh := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{due, fresh} {
		_, _ = f.m.Start(ctx, testSession, id)
		f.advanceAll(t, id, StageHealthAssessment, StageIrisAssessment, StageReportGeneration,
			StageTreatmentPlanning, StageTreatmentScheduling)
	}
	f.advanceAll(t, due, StageInTreatment)
	f.now = f.now.AddDate(0, 0, 20)
	f.advanceAll(t, fresh, StageInTreatment)
	f.now = f.now.AddDate(0, 0, 10)

	moved, err := f.m.SweepDue(ctx, auth.System("clinic-1"), "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 patient moved, got %d", moved)
	}
	if f.m.Status(ctx, due).CurrentStage != StageReassessment {
		t.Error("expected due patient in REASSESSMENT")
	}
	if f.m.Status(ctx, fresh).CurrentStage != StageInTreatment {
		t.Error("expected fresh patient to stay IN_TREATMENT")
	}
}

func TestSweepDue_StoreDown(t *testing.T) {
	f := newFixture()
	f.repo.setDown(true)
	_, err := f.m.SweepDue(context.Background(), auth.System(""), "")
	if !apperror.Is(err, apperror.KindTransientStorage) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestConcurrentAdvance_SinglePatient(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	_, _ = f.m.Start(context.Background(), testSession, id)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.m.Advance(context.Background(), testSession, id, string(StageHealthAssessment))
		}()
	}
	wg.Wait()
	if f.repo.updates != 1 {
		t.Errorf("expected exactly one write, got %d", f.repo.updates)
	}
}
