package iris

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
)

type repoPG struct{ db db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{db: q}
}

func (r *repoPG) Insert(ctx context.Context, f *Finding) error {
	f.ID = uuid.New()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	zones, err := json.Marshal(f.LacunaeZones)
	if err != nil {
		return err
	}
	organs, err := json.Marshal(f.Organs)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO iris_findings (id, patient_id, clinic_id, constitutional_type, fiber_density, pupil_size,
			stress_rings, lacunae, lacunae_zones, organs, notes, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		f.ID, f.PatientID, f.ClinicID, f.ConstitutionalType, f.FiberDensity, f.PupilSize,
		string(f.StressRings), f.Lacunae, zones, organs, f.Notes, f.RecordedBy, f.CreatedAt)
	return err
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Finding, error) {
	var f Finding
	var stress string
	var zones, organs []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, patient_id, clinic_id, constitutional_type, fiber_density, COALESCE(pupil_size, ''),
			stress_rings, lacunae, lacunae_zones, organs, COALESCE(notes, ''), COALESCE(recorded_by, ''), created_at
		FROM iris_findings WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID).Scan(
		&f.ID, &f.PatientID, &f.ClinicID, &f.ConstitutionalType, &f.FiberDensity, &f.PupilSize,
		&stress, &f.Lacunae, &zones, &organs, &f.Notes, &f.RecordedBy, &f.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("iris.latest", "iris finding")
	}
	if err != nil {
		return nil, err
	}
	f.StressRings = Grade(stress)
	if len(zones) > 0 {
		if err := json.Unmarshal(zones, &f.LacunaeZones); err != nil {
			return nil, fmt.Errorf("decode lacunae zones: %w", err)
		}
	}
	if len(organs) > 0 {
		if err := json.Unmarshal(organs, &f.Organs); err != nil {
			return nil, fmt.Errorf("decode organs: %w", err)
		}
	}
	return &f, nil
}
