package iris

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, f *Finding) error
	Latest(ctx context.Context, patientID uuid.UUID) (*Finding, error)
}
