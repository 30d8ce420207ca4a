package report

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/domain/therapy"
	"github.com/celloxen/intake/internal/platform/apperror"
)

var generatedAt = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testPatient() *patient.Patient {
	return &patient.Patient{ID: uuid.New(), ClinicID: "clinic-1", FirstName: "Ada", LastName: "Lovelace", Age: 36, Gender: "female"}
}

func completedSession(p *patient.Patient, s map[assessment.Category]int, cs ...assessment.Contraindication) *assessment.Session {
	return &assessment.Session{
		ID:                uuid.New(),
		PatientID:         p.ID,
		ClinicID:          p.ClinicID,
		Status:            assessment.SessionCompleted,
		Scores:            &assessment.CategoryScoreSet{Scores: s, Overall: 70},
		Contraindications: cs,
		RequiresClearance: assessment.RequiresClearance(cs),
	}
}

func healthy() map[assessment.Category]int {
	return map[assessment.Category]int{
		assessment.CategoryPhysical: 90, assessment.CategoryMental: 90, assessment.CategoryLifestyle: 90,
		assessment.CategoryEnvironment: 90, assessment.CategoryHistory: 90,
	}
}

func newTestBuilder() *Builder {
	b := NewBuilder(nil)
	b.now = func() time.Time { return generatedAt }
	return b
}

func therapyCodes(r *Report) []string {
	out := make([]string, len(r.Therapies))
	for i, t := range r.Therapies {
		out[i] = t.Code
	}
	return out
}

func TestBuild_CategoryDomainsWithConstitution(t *testing.T) {
	p := testPatient()
	s := healthy()
	s[assessment.CategoryPhysical] = 40
	finding := &iris.Finding{ConstitutionalType: therapy.ConstitutionNeurogenic, FiberDensity: "moderate", StressRings: "moderate"}

	r, err := newTestBuilder().Build(p, completedSession(p, s), finding)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"FRQ-001", "FRQ-002", "LGT-001", "PMF-001", "LGT-003", "CRY-001"}
	if got := therapyCodes(r); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !reflect.DeepEqual(r.IrisDomains, []string{"nervous", "stress"}) {
		t.Errorf("unexpected iris domains %v", r.IrisDomains)
	}
	if r.PatientName != "Ada Lovelace" || !r.GeneratedAt.Equal(generatedAt) {
		t.Errorf("unexpected header %+v", r)
	}
	for _, pt := range r.Therapies {
		if pt.Protocol.TotalSessions != therapy.DefaultTotalSessions || pt.Protocol.Frequency != therapy.DefaultFrequency {
			t.Errorf("missing protocol on %s", pt.Code)
		}
	}
}

func TestBuild_IrisDomainsAfterCategories(t *testing.T) {
	p := testPatient()
	finding := &iris.Finding{ConstitutionalType: therapy.ConstitutionLymphatic, FiberDensity: "loose"}

	r, err := newTestBuilder().Build(p, completedSession(p, healthy()), finding)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"OZN-001", "IVT-003", "LGT-003", "IVT-001", "IVT-002", "FRQ-003"}
	if got := therapyCodes(r); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, pt := range r.Therapies {
		if pt.Code == "IVT-003" && (pt.TargetDomain != "lymphatic" || pt.Priority != therapy.PriorityMandatory) {
			t.Errorf("iris domains keep base priority, got %+v", pt.Recommendation)
		}
		if pt.Code == "FRQ-003" && pt.TargetDomain != "constitutional" {
			t.Errorf("loose fibres should target constitutional strength, got %+v", pt.Recommendation)
		}
	}
}

func TestBuild_NoIrisFallsBackToDefaultSet(t *testing.T) {
	p := testPatient()
	r, err := newTestBuilder().Build(p, completedSession(p, healthy()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := therapyCodes(r); !reflect.DeepEqual(got, therapy.DefaultWellnessSet) {
		t.Errorf("expected the default wellness set, got %v", got)
	}
	if r.ConstitutionalType != "" || r.Contraindications == nil {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestBuild_RequiresClearance(t *testing.T) {
	p := testPatient()
	abs := assessment.Contraindication{Severity: assessment.SeverityAbsolute, Condition: "Severe Pain Condition"}
	r, err := newTestBuilder().Build(p, completedSession(p, healthy(), abs), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !r.RequiresClearance || len(r.Contraindications) != 1 {
		t.Errorf("expected clearance flag, got %+v", r)
	}
}

func TestBuild_RejectsIncompleteSession(t *testing.T) {
	p := testPatient()
	sess := completedSession(p, healthy())
	sess.Status = assessment.SessionInProgress
	if _, err := newTestBuilder().Build(p, sess, nil); !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := newTestBuilder().Build(nil, completedSession(p, healthy()), nil); !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error without patient, got %v", err)
	}
}
