// Package audit records workflow transitions and persistence failures.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Event kinds.
const (
	KindTransition         = "transition"
	KindRejected           = "rejected"
	KindPersistenceFailure = "persistence_failure"
	KindReconciled         = "reconciled"
)

// Event is one audited occurrence in a patient's workflow.
type Event struct {
	Kind      string    `json:"kind"`
	PatientID string    `json:"patient_id"`
	ClinicID  string    `json:"clinic_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	FromStage string    `json:"from_stage,omitempty"`
	ToStage   string    `json:"to_stage,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives audit events. Record must not block the caller on I/O.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, e Event) {
	evt := s.logger.Info()
	if e.Kind == KindPersistenceFailure || e.Kind == KindRejected {
		evt = s.logger.Warn()
	}
	evt.
		Str("kind", e.Kind).
		Str("patient_id", e.PatientID).
		Str("clinic_id", e.ClinicID).
		Str("user_id", e.UserID).
		Str("from", e.FromStage).
		Str("to", e.ToStage).
		Str("detail", e.Detail).
		Time("at", e.At).
		Msg("workflow audit")
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// Execer is the subset of the pool the PG sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGSink persists events to workflow_transitions from a background worker.
// When the buffer is full the event is dropped and logged; the workflow
// never waits on its own audit trail.
type PGSink struct {
	db     Execer
	logger zerolog.Logger
	events chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPGSink(db Execer, buffer int, logger zerolog.Logger) *PGSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &PGSink{
		db:     db,
		logger: logger.With().Str("component", "audit_pg").Logger(),
		events: make(chan Event, buffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *PGSink) Record(_ context.Context, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped(e, "audit sink closed, event dropped")
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped(e, "audit buffer full, event dropped")
	}
}

// dropped logs the whole event so it survives in the log stream.
func (s *PGSink) dropped(e Event, msg string) {
	s.logger.Warn().
		Str("kind", e.Kind).
		Str("patient_id", e.PatientID).
		Str("clinic_id", e.ClinicID).
		Str("from", e.FromStage).
		Str("to", e.ToStage).
		Str("detail", e.Detail).
		Time("at", e.At).
		Msg(msg)
}

func (s *PGSink) run() {
	defer s.wg.Done()
	for e := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := s.db.Exec(ctx, `
			INSERT INTO workflow_transitions (patient_id, clinic_id, user_id, kind, from_stage, to_stage, detail, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.PatientID, nullable(e.ClinicID), nullable(e.UserID), e.Kind,
			nullable(e.FromStage), nullable(e.ToStage), nullable(e.Detail), e.At)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).
				Str("kind", e.Kind).
				Str("patient_id", e.PatientID).
				Str("clinic_id", e.ClinicID).
				Str("from", e.FromStage).
				Str("to", e.ToStage).
				Msg("audit insert failed")
		}
	}
}

// Close drains pending events and stops the worker. Events recorded after
// Close are logged and dropped.
func (s *PGSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
