package reassessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
)

type repoPG struct{ db db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{db: q}
}

const recordCols = `id, patient_id, clinic_id, scheduled_at, status, comparison, previous_session_id,
	session_id, reminders_sent, created_at, completed_at`

func (r *repoPG) scan(row pgx.Row) (*Record, error) {
	var rec Record
	var comparison, reminders []byte
	if err := row.Scan(&rec.ID, &rec.PatientID, &rec.ClinicID, &rec.ScheduledAt, &rec.Status, &comparison,
		&rec.PreviousSessionID, &rec.SessionID, &reminders, &rec.CreatedAt, &rec.CompletedAt); err != nil {
		return nil, err
	}
	if rec.Status != StatusScheduled && rec.Status != StatusCompleted {
		return nil, apperror.Integrity("reassessment.scan", "record %s has unknown status %q", rec.ID, rec.Status)
	}
	if len(comparison) > 0 && string(comparison) != "null" {
		rec.Comparison = &ComparisonResult{}
		if err := json.Unmarshal(comparison, rec.Comparison); err != nil {
			return nil, fmt.Errorf("decode comparison: %w", err)
		}
	}
	rec.RemindersSent = []int{}
	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &rec.RemindersSent); err != nil {
			return nil, fmt.Errorf("decode reminders: %w", err)
		}
	}
	return &rec, nil
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Record, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) Insert(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	rec.Status = StatusScheduled
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.RemindersSent == nil {
		rec.RemindersSent = []int{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO reassessments (id, patient_id, clinic_id, scheduled_at, status, previous_session_id, reminders_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '[]'::jsonb, $7)`,
		rec.ID, rec.PatientID, rec.ClinicID, rec.ScheduledAt, rec.Status, rec.PreviousSessionID, rec.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrOpenRecordExists
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scan(r.db.QueryRow(ctx, `SELECT `+recordCols+` FROM reassessments WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("reassessment.get", "reassessment")
	}
	return rec, err
}

func (r *repoPG) Open(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	rec, err := r.scan(r.db.QueryRow(ctx, `
		SELECT `+recordCols+` FROM reassessments
		WHERE patient_id = $1 AND status = 'scheduled'`, patientID))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("reassessment.open", "scheduled reassessment")
	}
	return rec, err
}

func (r *repoPG) ListOpen(ctx context.Context, clinicID string) ([]*Record, error) {
	q := `SELECT ` + recordCols + ` FROM reassessments WHERE status = 'scheduled'`
	var args []interface{}
	if clinicID != "" {
		q += ` AND clinic_id = $1`
		args = append(args, clinicID)
	}
	return r.list(ctx, q+` ORDER BY scheduled_at`, args...)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	return r.list(ctx, `SELECT `+recordCols+` FROM reassessments WHERE patient_id = $1 ORDER BY scheduled_at DESC`, patientID)
}

func (r *repoPG) RecentCompleted(ctx context.Context, clinicID string, limit int) ([]*Record, error) {
	return r.list(ctx, `
		SELECT `+recordCols+` FROM reassessments
		WHERE clinic_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT $2`, clinicID, limit)
}

func (r *repoPG) Complete(ctx context.Context, rec *Record) error {
	comparison, err := json.Marshal(rec.Comparison)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE reassessments
		SET status = 'completed', comparison = $2, session_id = $3, completed_at = $4
		WHERE id = $1 AND status = 'scheduled'`,
		rec.ID, comparison, rec.SessionID, rec.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Integrity("reassessment.complete", "reassessment %s is not scheduled", rec.ID)
	}
	return nil
}

func (r *repoPG) SetRemindersSent(ctx context.Context, id uuid.UUID, offsets []int) error {
	b, err := json.Marshal(offsets)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE reassessments SET reminders_sent = $2 WHERE id = $1`, id, b)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("reassessment.reminders", "reassessment")
	}
	return nil
}
