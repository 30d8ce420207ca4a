package patient

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// WorkflowStarter creates the patient's workflow record.
type WorkflowStarter interface {
	Start(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*workflow.Status, error)
}

type Service struct {
	patients Repository
	workflow WorkflowStarter
	logger   zerolog.Logger
}

func NewService(patients Repository, wf WorkflowStarter, logger zerolog.Logger) *Service {
	return &Service{patients: patients, workflow: wf, logger: logger.With().Str("component", "patient").Logger()}
}

func normalize(p *Patient) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
}

func validate(op string, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return apperror.Validation(op, "first_name and last_name are required")
	}
	if p.Age < 0 || p.Age > 130 {
		return apperror.Validation(op, "age must be between 0 and 130")
	}
	if !validGenders[p.Gender] {
		return apperror.Validation(op, "invalid gender: %s", p.Gender)
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return apperror.Validation(op, "invalid email: %s", p.Email)
		}
	}
	return nil
}

// Register creates the patient in the session's clinic and starts the
// workflow at REGISTERED.
func (s *Service) Register(ctx context.Context, sess auth.Session, p *Patient) (*workflow.Status, error) {
	normalize(p)
	if p.Gender == "" {
		p.Gender = "unknown"
	}
	if sess.ClinicID == "" {
		return nil, apperror.Validation("patient.register", "clinic is required")
	}
	if err := validate("patient.register", p); err != nil {
		return nil, err
	}
	p.ClinicID = sess.ClinicID
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, apperror.Store("patient.register", err)
	}

	st, err := s.workflow.Start(ctx, sess, p.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("clinic_id", p.ClinicID).
		Msg("patient registered")
	return st, nil
}

// Get returns a patient of the given clinic; other clinics' patients are
// reported as not found.
func (s *Service) Get(ctx context.Context, clinicID string, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Store("patient.get", err)
	}
	if p.ClinicID != clinicID {
		return nil, apperror.NotFound("patient.get", "patient")
	}
	return p, nil
}

// Owns reports KindNotFound unless the patient belongs to clinicID.
func (s *Service) Owns(ctx context.Context, clinicID string, id uuid.UUID) error {
	_, err := s.Get(ctx, clinicID, id)
	return err
}

// Update applies a demographic correction. The clinic never changes.
func (s *Service) Update(ctx context.Context, clinicID string, p *Patient) (*Patient, error) {
	existing, err := s.Get(ctx, clinicID, p.ID)
	if err != nil {
		return nil, err
	}
	normalize(p)
	if p.Gender == "" {
		p.Gender = existing.Gender
	}
	if err := validate("patient.update", p); err != nil {
		return nil, err
	}
	p.ClinicID = existing.ClinicID
	p.CreatedAt = existing.CreatedAt
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, apperror.Store("patient.update", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, clinicID, name string, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.patients.List(ctx, clinicID, name, limit, offset)
	if err != nil {
		return nil, 0, apperror.Store("patient.list", err)
	}
	return items, total, nil
}
