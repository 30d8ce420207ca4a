package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/audit"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/internal/platform/cache"
)

// DefaultReassessmentIntervalDays is used when Options leaves the interval unset.
const DefaultReassessmentIntervalDays = 30

type Options struct {
	ReassessmentIntervalDays int
	Audit                    audit.Sink
	Now                      func() time.Time
}

// cacheEntry is what the stage cache holds per patient. Dirty marks a
// status the store has not accepted yet; Status.Version stays at the last
// version the store confirmed so the next write can reconcile.
type cacheEntry struct {
	Status Status `json:"status"`
	Dirty  bool   `json:"dirty"`
}

// Machine owns every WorkflowStatus mutation. Store failures never stop a
// transition: the new stage is kept in the cache and written on the next
// successful round-trip.
type Machine struct {
	repo     Repository
	cache    *cache.Store
	audit    audit.Sink
	logger   zerolog.Logger
	now      func() time.Time
	interval int

	locksMu sync.Mutex
	locks   map[uuid.UUID]*patientLock
}

type patientLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(repo Repository, c *cache.Store, logger zerolog.Logger, opts Options) *Machine {
	if opts.ReassessmentIntervalDays <= 0 {
		opts.ReassessmentIntervalDays = DefaultReassessmentIntervalDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger = logger.With().Str("component", "workflow").Logger()
	if opts.Audit == nil {
		opts.Audit = audit.NewLogSink(logger)
	}
	return &Machine{
		repo:     repo,
		cache:    c,
		audit:    opts.Audit,
		logger:   logger,
		now:      opts.Now,
		interval: opts.ReassessmentIntervalDays,
		locks:    make(map[uuid.UUID]*patientLock),
	}
}

// ReassessmentIntervalDays returns the configured interval.
func (m *Machine) ReassessmentIntervalDays() int { return m.interval }

func (m *Machine) lock(patientID uuid.UUID) func() {
	m.locksMu.Lock()
	l, ok := m.locks[patientID]
	if !ok {
		l = &patientLock{}
		m.locks[patientID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, patientID)
		}
		m.locksMu.Unlock()
	}
}

// Start creates the patient's workflow in REGISTERED. Starting an existing
// workflow returns it unchanged, whatever its stage.
func (m *Machine) Start(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*Status, error) {
	if sess.ClinicID == "" {
		return nil, apperror.Validation("workflow.start", "clinic is required")
	}
	if patientID == uuid.Nil {
		return nil, apperror.Validation("workflow.start", "patient id is required")
	}

	unlock := m.lock(patientID)
	defer unlock()

	if st, ok := m.load(ctx, patientID); ok {
		return st, nil
	}

	st := newStatus(patientID, sess.ClinicID, m.now().UTC())
	if !m.persist(ctx, sess, StageRegistered, st) {
		// another writer created it first
		if existing, ok := m.load(ctx, patientID); ok {
			return existing, nil
		}
	}
	m.audit.Record(ctx, m.event(audit.KindTransition, sess, st, "", StageRegistered, "workflow started"))
	return st.clone(), nil
}

// Advance moves the patient to target. It returns false when target is not
// a known stage or not reachable from the current stage. Asking for the
// current stage again is a successful no-op. Persistence failures do not
// make Advance fail.
func (m *Machine) Advance(ctx context.Context, sess auth.Session, patientID uuid.UUID, target string) bool {
	stage, ok := ParseStage(target)
	if !ok {
		m.logger.Warn().Str("patient_id", patientID.String()).Str("target", target).Msg("unknown stage rejected")
		m.audit.Record(ctx, audit.Event{
			Kind: audit.KindRejected, PatientID: patientID.String(), ClinicID: sess.ClinicID,
			UserID: sess.UserID, ToStage: target, Detail: "unknown stage", At: m.now().UTC(),
		})
		return false
	}

	unlock := m.lock(patientID)
	defer unlock()

	cur, exists := m.load(ctx, patientID)
	if !exists {
		cur = newStatus(patientID, sess.ClinicID, m.now().UTC())
	}
	if cur.CurrentStage == stage {
		return true
	}
	if !CanTransition(cur.CurrentStage, stage) {
		m.reject(ctx, sess, cur, stage)
		return false
	}

	from := cur.CurrentStage
	next := cur.clone()
	next.apply(stage, m.now().UTC())

	if !m.persist(ctx, sess, from, next) {
		// the store moved on under us; retry once against its state
		stored, ok := m.load(ctx, patientID)
		if !ok {
			return false
		}
		if stored.CurrentStage == stage {
			return true
		}
		if !CanTransition(stored.CurrentStage, stage) {
			m.reject(ctx, sess, stored, stage)
			return false
		}
		from = stored.CurrentStage
		next = stored.clone()
		next.apply(stage, m.now().UTC())
		if !m.persist(ctx, sess, from, next) {
			m.reject(ctx, sess, stored, stage)
			return false
		}
	}

	m.audit.Record(ctx, m.event(audit.KindTransition, sess, next, from, stage, ""))
	m.logger.Info().
		Str("patient_id", patientID.String()).
		Str("from", string(from)).
		Str("to", string(stage)).
		Msg("workflow advanced")
	return true
}

// Status returns the patient's status. It never fails: an unsaved cached
// stage wins over the store, the store wins over a clean cache entry, and a
// patient unknown to both is reported as REGISTERED.
func (m *Machine) Status(ctx context.Context, patientID uuid.UUID) *Status {
	if st, ok := m.load(ctx, patientID); ok {
		return st
	}
	return newStatus(patientID, "", m.now().UTC())
}

// load resolves the current status and whether one exists anywhere.
func (m *Machine) load(ctx context.Context, patientID uuid.UUID) (*Status, bool) {
	key := patientID.String()
	var entry cacheEntry
	cached, err := m.cache.Get(ctx, key, &entry)
	if err != nil {
		m.logger.Warn().Err(err).Str("patient_id", key).Msg("stage cache unreadable")
		cached = false
	}
	if cached && entry.Dirty {
		return entry.Status.clone(), true
	}

	st, err := m.repo.Get(ctx, patientID)
	switch {
	case err == nil:
		m.cacheStatus(ctx, st, false)
		return st, true
	case apperror.Is(err, apperror.KindNotFound):
		if cached {
			return entry.Status.clone(), true
		}
		return nil, false
	default:
		m.logger.Warn().Err(apperror.Transient("workflow.load", err)).Str("patient_id", key).Msg("store unavailable, using cached stage")
		if cached {
			return entry.Status.clone(), true
		}
		return nil, false
	}
}

// persist writes st to the store. It reports false only on a version
// conflict; any other failure leaves st dirty in the cache and reports true.
func (m *Machine) persist(ctx context.Context, sess auth.Session, from Stage, st *Status) bool {
	var err error
	if st.Version == 0 {
		err = m.repo.Insert(ctx, st)
	} else {
		err = m.repo.Update(ctx, st)
	}

	switch {
	case err == nil:
		m.cacheStatus(ctx, st, false)
		return true
	case errors.Is(err, ErrVersionConflict):
		m.cache.Delete(ctx, st.PatientID.String())
		return false
	default:
		terr := apperror.Transient("workflow.persist", err)
		m.logger.Warn().Err(terr).
			Str("patient_id", st.PatientID.String()).
			Str("stage", string(st.CurrentStage)).
			Msg("stage write failed, kept in cache")
		m.audit.Record(ctx, m.event(audit.KindPersistenceFailure, sess, st, from, st.CurrentStage, err.Error()))
		m.cacheStatus(ctx, st, true)
		return true
	}
}

func (m *Machine) cacheStatus(ctx context.Context, st *Status, dirty bool) {
	if err := m.cache.Set(ctx, st.PatientID.String(), cacheEntry{Status: *st, Dirty: dirty}); err != nil {
		m.logger.Error().Err(err).Str("patient_id", st.PatientID.String()).Msg("stage cache write failed")
	}
}

func (m *Machine) reject(ctx context.Context, sess auth.Session, cur *Status, target Stage) {
	m.logger.Warn().
		Str("patient_id", cur.PatientID.String()).
		Str("from", string(cur.CurrentStage)).
		Str("to", string(target)).
		Msg("illegal transition rejected")
	m.audit.Record(ctx, m.event(audit.KindRejected, sess, cur, cur.CurrentStage, target, "transition not allowed"))
}

func (m *Machine) event(kind string, sess auth.Session, st *Status, from, to Stage, detail string) audit.Event {
	clinic := st.ClinicID
	if clinic == "" {
		clinic = sess.ClinicID
	}
	return audit.Event{
		Kind:      kind,
		PatientID: st.PatientID.String(),
		ClinicID:  clinic,
		UserID:    sess.UserID,
		FromStage: string(from),
		ToStage:   string(to),
		Detail:    detail,
		At:        m.now().UTC(),
	}
}

// Reconcile writes every dirty cached status back to the store and returns
// how many were flushed.
func (m *Machine) Reconcile(ctx context.Context) int {
	flushed := 0
	for _, key := range m.cache.Keys() {
		patientID, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		unlock := m.lock(patientID)
		var entry cacheEntry
		ok, err := m.cache.Get(ctx, key, &entry)
		if err != nil || !ok || !entry.Dirty {
			unlock()
			continue
		}

		st := entry.Status.clone()
		var werr error
		if st.Version == 0 {
			werr = m.repo.Insert(ctx, st)
		} else {
			werr = m.repo.Update(ctx, st)
		}
		switch {
		case werr == nil:
			m.cacheStatus(ctx, st, false)
			m.audit.Record(ctx, m.event(audit.KindReconciled, auth.System(st.ClinicID), st, "", st.CurrentStage, ""))
			flushed++
		case errors.Is(werr, ErrVersionConflict):
			// the store was written by someone else since; it is authoritative
			m.cache.Delete(ctx, key)
			m.logger.Warn().Str("patient_id", key).Msg("dropped cached stage superseded in store")
		default:
			m.logger.Debug().Err(werr).Str("patient_id", key).Msg("reconcile deferred")
		}
		unlock()
	}
	return flushed
}

// SweepDue moves every in-treatment patient whose cycle reached the
// reassessment interval into REASSESSMENT. An empty clinic sweeps all
// clinics.
func (m *Machine) SweepDue(ctx context.Context, sess auth.Session, clinicID string) (int, error) {
	statuses, err := m.repo.ListByStage(ctx, clinicID, StageInTreatment)
	if err != nil {
		return 0, apperror.Transient("workflow.sweep", err)
	}
	now := m.now().UTC()
	moved := 0
	for _, st := range statuses {
		if !st.DueForReassessment(now, m.interval) {
			continue
		}
		if m.Advance(ctx, sess, st.PatientID, string(StageReassessment)) {
			moved++
		}
	}
	return moved, nil
}
