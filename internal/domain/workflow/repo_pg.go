package workflow

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

const statusCols = `patient_id, clinic_id, current_stage, completed_stages, cycle_started_at, version, started_at, updated_at`

type statusRow struct {
	PatientID      uuid.UUID
	ClinicID       string
	CurrentStage   string
	Completed      []byte
	CycleStartedAt *time.Time
	Version        int
	StartedAt      time.Time
	UpdatedAt      time.Time
}

func (r *repoPG) scan(row pgx.Row) (*Status, error) {
	var sr statusRow
	if err := row.Scan(&sr.PatientID, &sr.ClinicID, &sr.CurrentStage, &sr.Completed,
		&sr.CycleStartedAt, &sr.Version, &sr.StartedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}

	stage, ok := ParseStage(sr.CurrentStage)
	if !ok {
		return nil, apperror.Integrity("workflow.scan", "stored stage %q for patient %s is not a known stage", sr.CurrentStage, sr.PatientID)
	}
	s := &Status{
		PatientID:      sr.PatientID,
		ClinicID:       sr.ClinicID,
		CurrentStage:   stage,
		Completed:      map[Stage]time.Time{},
		CycleStartedAt: sr.CycleStartedAt,
		Version:        sr.Version,
		StartedAt:      sr.StartedAt,
		UpdatedAt:      sr.UpdatedAt,
	}
	if len(sr.Completed) > 0 {
		if err := json.Unmarshal(sr.Completed, &s.Completed); err != nil {
			return nil, fmt.Errorf("decode completed stages: %w", err)
		}
	}
	return s, nil
}

func (r *repoPG) Get(ctx context.Context, patientID uuid.UUID) (*Status, error) {
	s, err := r.scan(r.db.QueryRow(ctx, `SELECT `+statusCols+` FROM workflow_status WHERE patient_id = $1`, patientID))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("workflow.get", "workflow status")
	}
	return s, err
}

func (r *repoPG) Insert(ctx context.Context, s *Status) error {
	completed, err := json.Marshal(s.Completed)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_status (`+statusCols+`)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)`,
		s.PatientID, s.ClinicID, string(s.CurrentStage), completed, s.CycleStartedAt, s.StartedAt, s.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	s.Version = 1
	return nil
}

func (r *repoPG) Update(ctx context.Context, s *Status) error {
	completed, err := json.Marshal(s.Completed)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE workflow_status
		SET current_stage = $3, completed_stages = $4, cycle_started_at = $5,
			version = version + 1, updated_at = $6
		WHERE patient_id = $1 AND version = $2`,
		s.PatientID, s.Version, string(s.CurrentStage), completed, s.CycleStartedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *repoPG) ListByStage(ctx context.Context, clinicID string, stage Stage) ([]*Status, error) {
	q := `SELECT ` + statusCols + ` FROM workflow_status WHERE current_stage = $1`
	args := []interface{}{string(stage)}
	if clinicID != "" {
		q += ` AND clinic_id = $2`
		args = append(args, clinicID)
	}
	rows, err := r.db.Query(ctx, q+` ORDER BY updated_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Status
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
