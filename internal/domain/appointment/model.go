package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled   = "scheduled"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNoShow      = "no-show"
	StatusRescheduled = "rescheduled"
)

var validStatuses = map[string]bool{
	StatusScheduled:   true,
	StatusCompleted:   true,
	StatusCancelled:   true,
	StatusNoShow:      true,
	StatusRescheduled: true,
}

const (
	TypeTherapy      = "therapy"
	TypeReassessment = "reassessment"
	TypeConsultation = "consultation"
)

var validTypes = map[string]bool{
	TypeTherapy:      true,
	TypeReassessment: true,
	TypeConsultation: true,
}

// Appointment is one booked slot on the clinic grid.
type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	ClinicID        string    `db:"clinic_id" json:"clinic_id"`
	ScheduledAt     time.Time `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Type            string    `db:"appointment_type" json:"appointment_type"`
	TherapyCode     string    `db:"therapy_code" json:"therapy_code,omitempty"`
	Status          string    `db:"status" json:"status"`
	Notes           string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BulkResult summarises one BulkCreate call.
type BulkResult struct {
	Count        int            `json:"count"`
	Appointments []*Appointment `json:"appointments"`
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Message      string         `json:"message"`
}

// Conflict is a requested slot that is already taken, either by a stored
// appointment or by an earlier item in the same batch.
type Conflict struct {
	Index int       `json:"index"`
	At    time.Time `json:"at"`
}
