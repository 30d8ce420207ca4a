package patient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, apperror.NotFound("patient.get", "patient")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ID]; !ok {
		return apperror.NotFound("patient.update", "patient")
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, clinicID, _ string, _, _ int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.store {
		if p.ClinicID == clinicID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockStarter struct {
	started []uuid.UUID
}

func (m *mockStarter) Start(_ context.Context, sess auth.Session, id uuid.UUID) (*workflow.Status, error) {
	m.started = append(m.started, id)
	return &workflow.Status{PatientID: id, ClinicID: sess.ClinicID, CurrentStage: workflow.StageRegistered}, nil
}

var testSession = auth.Session{UserID: "reg-1", ClinicID: "clinic-1", Roles: []string{"registrar"}}

func newTestService() (*Service, *mockRepo, *mockStarter) {
	repo := newMockRepo()
	starter := &mockStarter{}
	return NewService(repo, starter, zerolog.Nop()), repo, starter
}

func TestRegister(t *testing.T) {
	svc, repo, starter := newTestService()
	p := &Patient{FirstName: " Ada ", LastName: "Lovelace", Age: 36, Gender: "Female", Email: "ada@example.com", ClinicID: "spoofed"}

	st, err := svc.Register(context.Background(), testSession, p)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if st.CurrentStage != workflow.StageRegistered {
		t.Errorf("expected REGISTERED, got %s", st.CurrentStage)
	}
	if len(starter.started) != 1 || starter.started[0] != p.ID {
		t.Error("expected the workflow to start for the new patient")
	}
	stored := repo.store[p.ID]
	if stored.ClinicID != "clinic-1" || stored.FirstName != "Ada" || stored.Gender != "female" {
		t.Errorf("unexpected stored patient %+v", stored)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, starter := newTestService()
	tests := []Patient{
		{LastName: "NoFirst", Age: 30},
		{FirstName: "Neg", LastName: "Age", Age: -1},
		{FirstName: "Bad", LastName: "Gender", Age: 30, Gender: "robot"},
		{FirstName: "Bad", LastName: "Email", Age: 30, Email: "not-an-email"},
	}
	for _, p := range tests {
		p := p
		if _, err := svc.Register(context.Background(), testSession, &p); !apperror.Is(err, apperror.KindValidation) {
			t.Errorf("expected validation error for %+v, got %v", p, err)
		}
	}
	if len(starter.started) != 0 {
		t.Error("no workflow should start for rejected registrations")
	}
}

func TestRegister_NoClinic(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), auth.Session{UserID: "x"}, &Patient{FirstName: "A", LastName: "B"})
	if !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestGet_OtherClinic(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FirstName: "A", LastName: "B", Age: 40}
	_, _ = svc.Register(context.Background(), testSession, p)

	if _, err := svc.Get(context.Background(), "clinic-2", p.ID); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if got, err := svc.Get(context.Background(), "clinic-1", p.ID); err != nil || got.ID != p.ID {
		t.Errorf("expected the patient, got %v", err)
	}
}

func TestOwns(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FirstName: "A", LastName: "B", Age: 40}
	_, _ = svc.Register(context.Background(), testSession, p)

	if err := svc.Owns(context.Background(), "clinic-1", p.ID); err != nil {
		t.Errorf("expected clinic-1 to own the patient, got %v", err)
	}
	if err := svc.Owns(context.Background(), "clinic-2", p.ID); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := svc.Owns(context.Background(), "clinic-1", uuid.New()); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("expected not found for unknown patient, got %v", err)
	}
}

func TestUpdate_KeepsClinic(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FirstName: "A", LastName: "B", Age: 40, Gender: "male"}
	_, _ = svc.Register(context.Background(), testSession, p)

	upd := &Patient{ID: p.ID, FirstName: "Alan", LastName: "B", Age: 41, ClinicID: "clinic-9"}
	got, err := svc.Update(context.Background(), "clinic-1", upd)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClinicID != "clinic-1" || got.Gender != "male" || repo.store[p.ID].Age != 41 {
		t.Errorf("unexpected update result %+v", got)
	}
}

func TestAttributes(t *testing.T) {
	p := &Patient{Age: 9, Gender: "male"}
	if a := p.Attributes(); a.Age != 9 || a.Gender != "male" {
		t.Errorf("unexpected %+v", a)
	}
	if (&Patient{FirstName: "A", LastName: "B"}).FullName() != "A B" {
		t.Error("unexpected full name")
	}
}
