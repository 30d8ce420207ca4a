package iris

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/domain/therapy"
)

// OrganSign is the reading of one organ zone.
type OrganSign struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (o OrganSign) normal() bool {
	s := strings.ToLower(strings.TrimSpace(o.Status))
	return s == "" || s == "normal" || s == "good"
}

// Finding is one iris assessment of a patient. The sign fields use the
// graded vocabulary of the iris chart; Normalize maps older values onto it.
type Finding struct {
	ID                 uuid.UUID   `json:"id"`
	PatientID          uuid.UUID   `json:"patient_id"`
	ClinicID           string      `json:"clinic_id"`
	ConstitutionalType string      `json:"constitutional_type"`
	FiberDensity       string      `json:"fiber_density"`
	PupilSize          string      `json:"pupil_size,omitempty"`
	StressRings        Grade       `json:"stress_rings,omitempty"`
	Lacunae            string      `json:"lacunae,omitempty"`
	LacunaeZones       []string    `json:"lacunae_zones,omitempty"`
	Organs             []OrganSign `json:"organs,omitempty"`
	Notes              string      `json:"notes,omitempty"`
	RecordedBy         string      `json:"recorded_by,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Grade is a graded sign such as stress rings. Older clients sent a ring
// count, which decodes to the matching grade.
type Grade string

func (g *Grade) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*g = gradeForCount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("stress_rings: %w", err)
	}
	*g = Grade(s)
	return nil
}

func gradeForCount(n int) Grade {
	switch {
	case n < 0:
		return Grade(strconv.Itoa(n))
	case n == 0:
		return "none"
	case n == 1:
		return "partial"
	case n == 2:
		return "moderate"
	}
	return "severe"
}

var constitutionalTypes = map[string]bool{
	therapy.ConstitutionLymphatic:        true,
	therapy.ConstitutionHaematogenic:     true,
	therapy.ConstitutionBiliary:          true,
	therapy.ConstitutionMixed:            true,
	therapy.ConstitutionNeurogenic:       true,
	therapy.ConstitutionPolyglandular:    true,
	therapy.ConstitutionConnectiveTissue: true,
}

var (
	fiberDensities = []string{"tight", "moderate", "loose", "very_loose"}
	pupilSizes     = []string{"miotic", "normal", "mydriatic", "anisocoria"}
	stressGrades   = []string{"none", "partial", "moderate", "severe"}
	lacunaeGrades  = []string{"none", "few", "moderate", "many"}
)

// legacyValues maps the earlier chart wording onto the current one.
var legacyValues = map[string]string{
	"dense":  "tight",
	"medium": "moderate",
	"small":  "miotic",
	"large":  "mydriatic",
}

func normalizeSign(v string) string {
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(v)))
	if cur, ok := legacyValues[v]; ok {
		return cur
	}
	return v
}

// Normalize lowercases every sign and maps legacy wording. An empty
// stress ring or lacunae grade means none.
func (f *Finding) Normalize() {
	f.ConstitutionalType = therapy.NormalizeConstitution(f.ConstitutionalType)
	f.FiberDensity = normalizeSign(f.FiberDensity)
	f.PupilSize = normalizeSign(f.PupilSize)
	f.StressRings = Grade(normalizeSign(string(f.StressRings)))
	if f.StressRings == "" {
		f.StressRings = "none"
	}
	f.Lacunae = normalizeSign(f.Lacunae)
	if f.Lacunae == "" {
		f.Lacunae = "none"
	}
}

// constitutionSystems are the organ systems each constitutional type
// predisposes. Haematogenic and mixed types point at none on their own.
var constitutionSystems = map[string][]string{
	therapy.ConstitutionNeurogenic:       {"nervous"},
	therapy.ConstitutionPolyglandular:    {"endocrine"},
	therapy.ConstitutionConnectiveTissue: {"connective_tissue"},
	therapy.ConstitutionLymphatic:        {"lymphatic"},
	therapy.ConstitutionBiliary:          {"hepatobiliary", "digestive"},
}

// Domains derives the problem domains the finding points at, in a stable
// order with duplicates removed: constitutional systems, then the graded
// signs, then named lacunae zones and weak organs.
func (f *Finding) Domains() []string {
	seen := map[string]bool{}
	var out []string
	add := func(d string) {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, d := range constitutionSystems[therapy.NormalizeConstitution(f.ConstitutionalType)] {
		add(d)
	}
	if f.FiberDensity == "loose" || f.FiberDensity == "very_loose" {
		add("constitutional")
	}
	if f.PupilSize != "" && f.PupilSize != "normal" {
		add("autonomic")
	}
	if f.StressRings != "" && f.StressRings != "none" {
		add("stress")
	}
	if f.Lacunae != "" && f.Lacunae != "none" {
		add("tissue")
	}
	zones := make([]string, len(f.LacunaeZones))
	for i, l := range f.LacunaeZones {
		zones[i] = strings.ToLower(l)
	}
	sort.Strings(zones)
	for _, z := range zones {
		add(z)
	}
	for _, o := range f.Organs {
		if !o.normal() {
			add(o.Name)
		}
	}
	return out
}
