package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// List returns a clinic's patients; name filters first or last name.
	List(ctx context.Context, clinicID, name string, limit, offset int) ([]*Patient, int, error)
}
