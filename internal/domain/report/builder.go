package report

import (
	"time"

	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/domain/therapy"
	"github.com/celloxen/intake/internal/platform/apperror"
)

// Builder assembles a report from a completed assessment and the optional
// iris finding. It does no I/O.
type Builder struct {
	matcher *therapy.Matcher
	now     func() time.Time
}

func NewBuilder(m *therapy.Matcher) *Builder {
	if m == nil {
		m = therapy.NewMatcher()
	}
	return &Builder{matcher: m, now: time.Now}
}

// Build ranks therapies for the category domains first and the iris domains
// after them, then attaches the standard protocol to each.
func (b *Builder) Build(p *patient.Patient, sess *assessment.Session, finding *iris.Finding) (*Report, error) {
	if p == nil {
		return nil, apperror.Validation("report.build", "patient is required")
	}
	if sess == nil || !sess.Completed() || sess.Scores == nil {
		return nil, apperror.Validation("report.build", "a completed assessment is required")
	}

	r := &Report{
		PatientID:         p.ID,
		ClinicID:          p.ClinicID,
		SessionID:         sess.ID,
		PatientName:       p.FullName(),
		Age:               p.Age,
		Gender:            p.Gender,
		Scores:            *sess.Scores,
		Contraindications: sess.Contraindications,
		RequiresClearance: assessment.RequiresClearance(sess.Contraindications),
		GeneratedAt:       b.now().UTC(),
	}
	if r.Contraindications == nil {
		r.Contraindications = []assessment.Contraindication{}
	}

	domains := therapy.ProblemDomains(*sess.Scores)
	if finding != nil {
		r.ConstitutionalType = finding.ConstitutionalType
		r.IrisDomains = finding.Domains()
		domains = append(domains, therapy.IrisDomains(r.IrisDomains)...)
	}

	r.Therapies = therapy.Plan(b.matcher.MatchDomains(r.ConstitutionalType, domains))
	return r, nil
}
