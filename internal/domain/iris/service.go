package iris

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "iris").Logger()}
}

// Save validates and stores a finding for the session's clinic.
func (s *Service) Save(ctx context.Context, sess auth.Session, f *Finding) error {
	f.Normalize()

	if f.PatientID == uuid.Nil {
		return apperror.Validation("iris.save", "patient id is required")
	}
	if f.ConstitutionalType == "" {
		return apperror.Validation("iris.save", "constitutional_type is required")
	}
	if !constitutionalTypes[f.ConstitutionalType] {
		return apperror.Validation("iris.save", "unknown constitutional_type: %s", f.ConstitutionalType)
	}
	if !slices.Contains(fiberDensities, f.FiberDensity) {
		return apperror.Validation("iris.save", "fiber_density must be one of %s", strings.Join(fiberDensities, ", "))
	}
	if f.PupilSize != "" && !slices.Contains(pupilSizes, f.PupilSize) {
		return apperror.Validation("iris.save", "pupil_size must be one of %s", strings.Join(pupilSizes, ", "))
	}
	if !slices.Contains(stressGrades, string(f.StressRings)) {
		return apperror.Validation("iris.save", "stress_rings must be one of %s", strings.Join(stressGrades, ", "))
	}
	if !slices.Contains(lacunaeGrades, f.Lacunae) {
		return apperror.Validation("iris.save", "lacunae must be one of %s", strings.Join(lacunaeGrades, ", "))
	}

	f.ClinicID = sess.ClinicID
	f.RecordedBy = sess.UserID
	if err := s.repo.Insert(ctx, f); err != nil {
		return apperror.Transient("iris.save", err)
	}
	s.logger.Info().
		Str("patient_id", f.PatientID.String()).
		Str("constitutional_type", f.ConstitutionalType).
		Strs("domains", f.Domains()).
		Msg("iris finding recorded")
	return nil
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Finding, error) {
	f, err := s.repo.Latest(ctx, patientID)
	return f, apperror.Store("iris.latest", err)
}
