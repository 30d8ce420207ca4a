package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/platform/apperror"
)

type Service struct {
	repo     Repository
	builder  *Builder
	renderer XLSXRenderer
	logger   zerolog.Logger
}

func NewService(repo Repository, builder *Builder, renderer XLSXRenderer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, builder: builder, renderer: renderer, logger: logger.With().Str("component", "report").Logger()}
}

// Generate builds and stores the report. A store failure is returned; the
// report is not kept anywhere else.
func (s *Service) Generate(ctx context.Context, p *patient.Patient, sess *assessment.Session, finding *iris.Finding) (*Report, error) {
	r, err := s.builder.Build(p, sess, finding)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return nil, apperror.Transient("report.generate", err)
	}

	codes := make([]string, len(r.Therapies))
	for i, t := range r.Therapies {
		codes[i] = t.Code
	}
	s.logger.Info().
		Str("report_id", r.ID.String()).
		Str("patient_id", r.PatientID.String()).
		Int("overall_score", r.Scores.Overall).
		Bool("requires_clearance", r.RequiresClearance).
		Strs("therapies", codes).
		Msg("report generated")
	return r, nil
}

func (s *Service) Get(ctx context.Context, clinicID string, id uuid.UUID) (*Report, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Store("report.get", err)
	}
	if r.ClinicID != clinicID {
		return nil, apperror.NotFound("report.get", "report")
	}
	return r, nil
}

func (s *Service) Latest(ctx context.Context, clinicID string, patientID uuid.UUID) (*Report, error) {
	r, err := s.repo.Latest(ctx, patientID)
	if err != nil {
		return nil, apperror.Store("report.latest", err)
	}
	if r.ClinicID != clinicID {
		return nil, apperror.NotFound("report.latest", "report")
	}
	return r, nil
}

// Render produces the printable workbook.
func (s *Service) Render(r *Report) ([]byte, error) {
	return s.renderer.Render(r)
}
