package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by Update when the stored version moved on.
var ErrVersionConflict = errors.New("workflow status version conflict")

type Repository interface {
	// Get returns an apperror NotFound error when the patient has no status.
	Get(ctx context.Context, patientID uuid.UUID) (*Status, error)
	// Insert stores a new status at version 1. A status that already exists
	// yields ErrVersionConflict.
	Insert(ctx context.Context, s *Status) error
	// Update writes s if the stored version equals s.Version and bumps it.
	Update(ctx context.Context, s *Status) error
	ListByStage(ctx context.Context, clinicID string, stage Stage) ([]*Status, error)
}
