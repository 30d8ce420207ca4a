package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
)

const apptCols = `id, patient_id, clinic_id, scheduled_at, duration_minutes, appointment_type,
	COALESCE(therapy_code, ''), status, COALESCE(notes, ''), created_at`

type repoPG struct{ db db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{db: q}
}

func (r *repoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ClinicID, &a.ScheduledAt, &a.DurationMinutes, &a.Type,
		&a.TherapyCode, &a.Status, &a.Notes, &a.CreatedAt)
	return &a, err
}

func insertOne(ctx context.Context, q db.Querier, a *Appointment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, clinic_id, scheduled_at, duration_minutes, appointment_type,
			therapy_code, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.PatientID, a.ClinicID, a.ScheduledAt, a.DurationMinutes, a.Type,
		a.TherapyCode, a.Status, a.Notes, a.CreatedAt)
	return slotTaken(err)
}

func (r *repoPG) InsertBatch(ctx context.Context, appts []*Appointment) error {
	now := time.Now().UTC()
	for _, a := range appts {
		a.ID = uuid.New()
		a.CreatedAt = now
	}
	insertAll := func(q db.Querier) error {
		for _, a := range appts {
			if err := insertOne(ctx, q, a); err != nil {
				return err
			}
		}
		return nil
	}
	if tx, ok := r.db.(db.TxRunner); ok {
		return tx.InTx(ctx, insertAll)
	}
	return insertAll(r.db)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.db.QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("appointment.get", "appointment")
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) ListScheduled(ctx context.Context, clinicID string, from, to time.Time) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE clinic_id = $1 AND status = 'scheduled' AND scheduled_at >= $2 AND scheduled_at <= $3
		ORDER BY scheduled_at`, clinicID, from, to)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 ORDER BY scheduled_at`, patientID)
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) Reschedule(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET scheduled_at = $2
		WHERE id = $1 AND status = 'scheduled'`, id, at)
	if err != nil {
		return slotTaken(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.Integrity("appointment.reschedule", "appointment %s is not scheduled", id)
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, clinicID string, ids []uuid.UUID, status string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET status = $3
		WHERE clinic_id = $1 AND id = ANY($2)`, clinicID, ids, status)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func slotTaken(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSlotTaken
	}
	return err
}
