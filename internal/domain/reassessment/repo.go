package reassessment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrOpenRecordExists is returned by Insert when the patient already has a
// scheduled record.
var ErrOpenRecordExists = errors.New("patient already has a scheduled reassessment")

type Repository interface {
	Insert(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Open(ctx context.Context, patientID uuid.UUID) (*Record, error)
	// ListOpen returns scheduled records; an empty clinic lists every clinic.
	ListOpen(ctx context.Context, clinicID string) ([]*Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
	RecentCompleted(ctx context.Context, clinicID string, limit int) ([]*Record, error)
	// Complete closes a scheduled record; closing a record twice is an
	// integrity error.
	Complete(ctx context.Context, r *Record) error
	SetRemindersSent(ctx context.Context, id uuid.UUID, offsets []int) error
}
