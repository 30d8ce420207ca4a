package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSlotTaken is returned when a scheduled appointment already holds the
// clinic slot.
var ErrSlotTaken = errors.New("time slot already taken")

type Repository interface {
	// InsertBatch stores every appointment or none of them.
	InsertBatch(ctx context.Context, appts []*Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListScheduled(ctx context.Context, clinicID string, from, to time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, clinicID string, ids []uuid.UUID, status string) (int, error)
}
