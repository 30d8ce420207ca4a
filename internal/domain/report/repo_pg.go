package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
)

type repoPG struct{ db db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{db: q}
}

func (r *repoPG) Insert(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	insert := func(q db.Querier) error {
		if _, err := q.Exec(ctx, `
			INSERT INTO reports (id, patient_id, clinic_id, session_id, payload, requires_clearance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rep.ID, rep.PatientID, rep.ClinicID, rep.SessionID, payload, rep.RequiresClearance, rep.GeneratedAt); err != nil {
			return err
		}
		for _, t := range rep.Therapies {
			if _, err := q.Exec(ctx, `
				INSERT INTO therapy_recommendations (report_id, code, name, category, priority, target_domain, label)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rep.ID, t.Code, t.Name, t.Category, int(t.Priority), t.TargetDomain, t.Label); err != nil {
				return err
			}
		}
		return nil
	}
	if tx, ok := r.db.(db.TxRunner); ok {
		return tx.InTx(ctx, insert)
	}
	return insert(r.db)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, payload FROM reports WHERE id = $1`, id))
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Report, error) {
	return r.scan(r.db.QueryRow(ctx, `
		SELECT id, payload FROM reports WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID))
}

func (r *repoPG) scan(row pgx.Row) (*Report, error) {
	var id uuid.UUID
	var payload []byte
	err := row.Scan(&id, &payload)
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("report.get", "report")
	}
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	rep.ID = id
	return &rep, nil
}
