package therapy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/celloxen/intake/internal/domain/assessment"
)

// Priority is 1 (mandatory) to 3 (optional); lower sorts first.
type Priority int

const (
	PriorityMandatory   Priority = 1
	PriorityRecommended Priority = 2
	PriorityOptional    Priority = 3
)

var priorityLabels = map[Priority]string{
	PriorityMandatory:   "MANDATORY-PRIMARY",
	PriorityRecommended: "RECOMMENDED-SECONDARY",
	PriorityOptional:    "OPTIONAL-SUPPORTIVE",
}

func (p Priority) Label() string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return priorityLabels[PriorityOptional]
}

const (
	// QualifyingScore is the wellness score below which a category is a
	// problem domain.
	QualifyingScore = 70
	// SevereSeverity is the problem severity above which priority is boosted.
	SevereSeverity = 70
	// IrisDomainSeverity is the fixed severity given to iris-derived domains.
	IrisDomainSeverity = 60
	// MaxRecommendations caps the list returned by Match.
	MaxRecommendations = 6
)

type Recommendation struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"duration_minutes"`
	Priority        Priority `json:"priority"`
	Label           string   `json:"label"`
	TargetDomain    string   `json:"target_domain,omitempty"`
}

// Domain is a problem area on the severity scale (higher = worse).
type Domain struct {
	Name     string `json:"name"`
	Severity int    `json:"severity"`
	Source   string `json:"source"`
}

// IrisDomains turns iris-derived domain names into match domains.
func IrisDomains(names []string) []Domain {
	out := make([]Domain, 0, len(names))
	for _, n := range names {
		out = append(out, Domain{Name: n, Severity: IrisDomainSeverity, Source: "iris"})
	}
	return out
}

// ProblemDomains picks answered categories scoring below QualifyingScore,
// worst first, ties in category declaration order.
func ProblemDomains(scores assessment.CategoryScoreSet) []Domain {
	var out []Domain
	for _, c := range assessment.Categories {
		v, ok := scores.Scores[c]
		if !ok || v <= 0 || v >= QualifyingScore {
			continue
		}
		out = append(out, Domain{Name: string(c), Severity: 100 - v, Source: "assessment"})
	}
	// stable: equal severities keep declaration order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

// Matcher maps scores and iris findings to a ranked recommendation list.
type Matcher struct {
	catalog []Therapy
	max     int
}

func NewMatcher() *Matcher {
	return &Matcher{catalog: Catalog, max: MaxRecommendations}
}

// Match ranks therapies for a score set and optional constitutional type.
func (m *Matcher) Match(scores assessment.CategoryScoreSet, constitutionalType string) []Recommendation {
	return m.MatchDomains(constitutionalType, ProblemDomains(scores))
}

// MatchDomains seeds from the constitutional type, then walks domains in
// the given order. The result is never empty.
func (m *Matcher) MatchDomains(constitutionalType string, domains []Domain) []Recommendation {
	seen := make(map[string]bool)
	var recs []Recommendation

	ctype := NormalizeConstitution(constitutionalType)
	for _, code := range ConstitutionalTherapies(ctype) {
		t, ok := m.lookup(code)
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		recs = append(recs, recommend(t, t.BasePriority, fmt.Sprintf("%s therapy for %s constitution", t.Category, ctype), ""))
	}

	for _, d := range domains {
		terms := SearchTerms(d.Name)
		for _, t := range m.catalog {
			if seen[t.Code] || !targets(t, terms) {
				continue
			}
			seen[t.Code] = true
			p := t.BasePriority
			if d.Severity > SevereSeverity && p > PriorityMandatory {
				p--
			}
			recs = append(recs, recommend(t, p, fmt.Sprintf("%s therapy for %s issues", t.Category, d.Name), d.Name))
		}
	}

	if len(recs) == 0 {
		for _, code := range DefaultWellnessSet {
			if t, ok := m.lookup(code); ok {
				recs = append(recs, recommend(t, t.BasePriority, fmt.Sprintf("%s therapy for general wellness", t.Category), ""))
			}
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })
	if len(recs) > m.max {
		recs = recs[:m.max]
	}
	return recs
}

func (m *Matcher) lookup(code string) (Therapy, bool) {
	for _, t := range m.catalog {
		if t.Code == code {
			return t, true
		}
	}
	return Therapy{}, false
}

func targets(t Therapy, terms []string) bool {
	for _, tag := range t.Targets {
		for _, term := range terms {
			if strings.Contains(tag, term) {
				return true
			}
		}
	}
	return false
}

func recommend(t Therapy, p Priority, description, domain string) Recommendation {
	return Recommendation{
		Code:            t.Code,
		Name:            t.Name,
		Category:        t.Category,
		Description:     description,
		DurationMinutes: t.DurationMinutes,
		Priority:        p,
		Label:           p.Label(),
		TargetDomain:    domain,
	}
}
