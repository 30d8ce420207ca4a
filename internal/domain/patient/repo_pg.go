package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
	"github.com/celloxen/intake/internal/platform/phi"
)

type repoPG struct {
	db  db.Querier
	enc phi.Encryptor
}

// NewRepoPG stores email and phone through enc. A nil enc stores them as is.
func NewRepoPG(q db.Querier, enc phi.Encryptor) Repository {
	if enc == nil {
		enc = phi.Plaintext{}
	}
	return &repoPG{db: q, enc: enc}
}

const patientCols = `id, clinic_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone, ''), age, gender, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.ClinicID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.Age, &p.Gender, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Email, err = r.enc.Decrypt(p.Email); err != nil {
		return nil, fmt.Errorf("patient %s email: %w", p.ID, err)
	}
	if p.Phone, err = r.enc.Decrypt(p.Phone); err != nil {
		return nil, fmt.Errorf("patient %s phone: %w", p.ID, err)
	}
	return &p, nil
}

func (r *repoPG) sealed(p *Patient) (email, phone string, err error) {
	if email, err = r.enc.Encrypt(p.Email); err != nil {
		return "", "", err
	}
	if phone, err = r.enc.Encrypt(p.Phone); err != nil {
		return "", "", err
	}
	return email, phone, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	email, phone, err := r.sealed(p)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO patients (id, clinic_id, first_name, last_name, email, phone, age, gender, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)`,
		p.ID, p.ClinicID, p.FirstName, p.LastName, email, phone, p.Age, p.Gender, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scan(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("patient.get", "patient")
	}
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	email, phone, err := r.sealed(p)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, email = NULLIF($4, ''), phone = NULLIF($5, ''),
			age = $6, gender = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, email, phone, p.Age, p.Gender, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient.update", "patient")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, clinicID, name string, limit, offset int) ([]*Patient, int, error) {
	where := `WHERE clinic_id = $1`
	args := []interface{}{clinicID}
	if name != "" {
		where += ` AND (first_name ILIKE $2 OR last_name ILIKE $2)`
		args = append(args, "%"+name+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+patientCols+` FROM patients `+where+
		` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, n+1, n+2), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}
