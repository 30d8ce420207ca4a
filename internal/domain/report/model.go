package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/therapy"
)

// Report is the wellness report generated after the iris assessment. It is
// stored whole as a JSON payload; recommendations are also kept as rows for
// the clinic dashboards.
type Report struct {
	ID                 uuid.UUID                     `json:"id"`
	PatientID          uuid.UUID                     `json:"patient_id"`
	ClinicID           string                        `json:"clinic_id"`
	SessionID          uuid.UUID                     `json:"session_id"`
	PatientName        string                        `json:"patient_name"`
	Age                int                           `json:"age"`
	Gender             string                        `json:"gender"`
	Scores             assessment.CategoryScoreSet   `json:"scores"`
	Contraindications  []assessment.Contraindication `json:"contraindications"`
	RequiresClearance  bool                          `json:"requires_clearance"`
	ConstitutionalType string                        `json:"constitutional_type,omitempty"`
	IrisDomains        []string                      `json:"iris_domains,omitempty"`
	Therapies          []therapy.PlannedTherapy      `json:"therapies"`
	GeneratedAt        time.Time                     `json:"generated_at"`
}

// TotalSessions sums the protocol sessions of every recommended therapy.
func (r *Report) TotalSessions() int {
	n := 0
	for _, t := range r.Therapies {
		n += t.Protocol.TotalSessions
	}
	return n
}
