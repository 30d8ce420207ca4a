package reassessment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
)

// ReminderOffsets are the days before the due date a reminder goes out.
var ReminderOffsets = []int{5, 2, 0}

// Record is one reassessment appointment in the patient's chain. At most
// one record per patient is scheduled at a time.
type Record struct {
	ID                uuid.UUID         `json:"id"`
	PatientID         uuid.UUID         `json:"patient_id"`
	ClinicID          string            `json:"clinic_id"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	Status            string            `json:"status"`
	Comparison        *ComparisonResult `json:"comparison,omitempty"`
	PreviousSessionID *uuid.UUID        `json:"previous_session_id,omitempty"`
	SessionID         *uuid.UUID        `json:"session_id,omitempty"`
	RemindersSent     []int             `json:"reminders_sent"`
	CreatedAt         time.Time         `json:"created_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

func (r *Record) reminderSent(offset int) bool {
	for _, o := range r.RemindersSent {
		if o == offset {
			return true
		}
	}
	return false
}

// DueItem is an open record whose date has passed.
type DueItem struct {
	Record      *Record `json:"record"`
	DaysOverdue int     `json:"days_overdue"`
}

// Reminder is a reminder ready to be sent for Record.
type Reminder struct {
	Record     *Record `json:"record"`
	DaysBefore int     `json:"days_before"`
}

// Message is the reminder wording shown to staff.
func (r Reminder) Message() string {
	if r.DaysBefore == 0 {
		return "Reassessment due today"
	}
	return fmt.Sprintf("Reassessment due in %d days", r.DaysBefore)
}

// Dashboard summarises a clinic's reassessment workload.
type Dashboard struct {
	Due               []DueItem  `json:"due"`
	Reminders         []Reminder `json:"reminders"`
	RecentlyCompleted []*Record  `json:"recently_completed"`
	Statistics        Stats      `json:"statistics"`
}

type Stats struct {
	TotalDue           int `json:"total_due"`
	OverdueCount       int `json:"overdue_count"`
	PendingReminders   int `json:"pending_reminders"`
	CompletedThisMonth int `json:"completed_this_month"`
}
