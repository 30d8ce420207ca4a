package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/domain/assessment"
)

type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClinicID  string    `db:"clinic_id" json:"clinic_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email,omitempty"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Age       int       `db:"age" json:"age"`
	Gender    string    `db:"gender" json:"gender"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var validGenders = map[string]bool{
	"male":    true,
	"female":  true,
	"other":   true,
	"unknown": true,
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Attributes returns what the contraindication rules look at.
func (p *Patient) Attributes() assessment.PatientAttributes {
	return assessment.PatientAttributes{Age: p.Age, Gender: p.Gender}
}
