package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
)

const (
	defaultHistory = 1000
	sendTimeout    = 30 * time.Second
)

// Dispatcher renders and sends notifications, keeping the most recent ones
// in memory for the admin endpoints.
type Dispatcher struct {
	sender    EmailSender
	templates *Templates
	logger    zerolog.Logger
	now       func() time.Time

	inflight sync.WaitGroup

	mu      sync.RWMutex
	byID    map[string]*Notification
	order   []string
	history int
}

// NewDispatcher wires sender to tpl. A nil tpl gets the built-in templates.
func NewDispatcher(sender EmailSender, tpl *Templates, logger zerolog.Logger) *Dispatcher {
	if tpl == nil {
		tpl = NewTemplates()
	}
	return &Dispatcher{
		sender:    sender,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		byID:      make(map[string]*Notification),
		history:   defaultHistory,
	}
}

// Send delivers n synchronously and reports whether it went out. Failures
// are logged and kept on n; they are never returned.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) bool {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	n.Status = StatusPending
	n.Attempts++
	return d.finish(n, d.deliver(ctx, n))
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) error {
	if n.TemplateID != "" && n.Body == "" {
		subject, body, err := d.templates.Render(n.TemplateID, n.TemplateData)
		if err != nil {
			return apperror.Notification("notification.render", err)
		}
		n.Subject, n.Body = subject, body
	}
	if n.Recipient == "" {
		return apperror.Notification("notification.send", errors.New("no recipient"))
	}
	if err := d.sender.SendEmail(ctx, n); err != nil {
		return apperror.Notification("notification.send", err)
	}
	return nil
}

// Dispatch sends n on its own goroutine. Cancelling ctx does not abort the
// send.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) {
	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		sendCtx, cancel := context.WithTimeout(detached, sendTimeout)
		defer cancel()
		d.Send(sendCtx, n)
	}()
}

// Wait blocks until every dispatched notification has completed.
func (d *Dispatcher) Wait() { d.inflight.Wait() }

func (d *Dispatcher) finish(n *Notification, err error) bool {
	log := d.logger.With().Str("notification_id", n.ID).Str("template", n.TemplateID).Str("clinic_id", n.ClinicID).Logger()
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		log.Warn().Err(err).Int("attempts", n.Attempts).Msg("notification not delivered")
	} else {
		sentAt := d.now()
		n.Status = StatusSent
		n.SentAt = &sentAt
		n.Error = ""
		log.Info().Msg("notification sent")
	}
	d.remember(n)
	return err == nil
}

// remember stores a copy of n; retained notifications are never mutated in
// place, only replaced.
func (d *Dispatcher) remember(n *Notification) {
	cp := *n
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.byID[n.ID]; !seen {
		d.order = append(d.order, n.ID)
	}
	d.byID[n.ID] = &cp
	if over := len(d.order) - d.history; over > 0 {
		for _, id := range d.order[:over] {
			delete(d.byID, id)
		}
		d.order = d.order[over:]
	}
}

// Get returns a copy of a recent notification.
func (d *Dispatcher) Get(id string) (*Notification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byID[id]
	if !ok {
		return nil, apperror.NotFound("notification.get", "notification")
	}
	cp := *n
	return &cp, nil
}

// Retry re-sends a failed notification. Anything else is a validation error.
// The stored entry is marked pending first, so concurrent retries of the
// same notification send it once.
func (d *Dispatcher) Retry(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	stored, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return false, apperror.NotFound("notification.retry", "notification")
	}
	if stored.Status != StatusFailed {
		status := stored.Status
		d.mu.Unlock()
		return false, apperror.Validation("notification.retry", "notification %s is %s, only failed notifications can be retried", id, status)
	}
	n := *stored
	n.Status = StatusPending
	pending := n
	d.byID[id] = &pending
	d.mu.Unlock()

	return d.Send(ctx, &n), nil
}

// Stats counts retained notifications by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := map[string]int{StatusSent: 0, StatusFailed: 0}
	for _, n := range d.byID {
		out[n.Status]++
	}
	return out
}
