// Package notification delivers patient-facing email for the intake flow:
// report-ready, treatment schedule and reassessment reminders. Delivery is
// fire-and-forget. A failed send is logged and recorded but never rolls
// back the workflow transition that triggered it.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Attachment is a file sent along with an email, e.g. the rendered report.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// Notification is one outbound email and its delivery state.
type Notification struct {
	ID           string            `json:"id"`
	ClinicID     string            `json:"clinic_id,omitempty"`
	Recipient    string            `json:"recipient"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender hands a rendered notification to a mail provider.
type EmailSender interface {
	SendEmail(ctx context.Context, n *Notification) error
}

// RecordingSender keeps every message in memory instead of delivering it.
// It backs tests and deployments without a mail provider.
type RecordingSender struct {
	// Fail, when set, is returned from every send.
	Fail error

	logger *zerolog.Logger
	mu     sync.Mutex
	sent   []Notification
}

// NewRecordingSender returns a sender that logs each message it swallows.
func NewRecordingSender(logger zerolog.Logger) *RecordingSender {
	return &RecordingSender{logger: &logger}
}

func (r *RecordingSender) SendEmail(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, *n)
	if r.logger != nil {
		r.logger.Info().Str("to", n.Recipient).Str("subject", n.Subject).Int("attachments", len(n.Attachments)).Msg("email recorded, not delivered")
	}
	return r.Fail
}

// SetFail changes the error returned by later sends.
func (r *RecordingSender) SetFail(err error) {
	r.mu.Lock()
	r.Fail = err
	r.mu.Unlock()
}

// Sent returns a copy of every recorded message.
func (r *RecordingSender) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
