package assessment

import "testing"

func TestDetect_ChildUnderTwelve(t *testing.T) {
	d := NewContraindicationDetector()
	got := d.Detect(PatientAttributes{Age: 8}, []Question{q("p1", CategoryPhysical, 1, 1)}, []Response{answer("p1", "e")})

	if len(got) != 1 {
		t.Fatalf("expected 1 contraindication, got %d", len(got))
	}
	if got[0].Severity != SeverityAbsolute || got[0].Condition != "Children Under 12 Years" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if !RequiresClearance(got) {
		t.Error("absolute contraindication should require clearance")
	}
}

func TestDetect_AdultNoFlags(t *testing.T) {
	got := NewContraindicationDetector().Detect(PatientAttributes{Age: 12}, nil, nil)
	if len(got) != 0 {
		t.Errorf("expected none, got %+v", got)
	}
	if got == nil {
		t.Error("expected empty slice, not nil")
	}
}

func TestDetect_PainQuestionsEachProduceEntry(t *testing.T) {
	qs := []Question{
		{ID: "p1", Category: CategoryPhysical, Weight: 1, Position: 1, Text: "How often do you experience joint pain?"},
		{ID: "p2", Category: CategoryPhysical, Weight: 1, Position: 2, Text: "Rate your back Pain over the last month"},
		{ID: "p3", Category: CategoryPhysical, Weight: 1, Position: 3, Text: "How is your pain after exercise?"},
	}
	rs := []Response{answer("p1", "a"), answer("p2", "b"), answer("p3", "c")}

	got := NewContraindicationDetector().Detect(PatientAttributes{Age: 40}, qs, rs)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries (p3 scored 3), got %d: %+v", len(got), got)
	}
	for i, want := range []string{"p1", "p2"} {
		if got[i].QuestionID != want || got[i].Condition != "Severe Pain Condition" || got[i].Severity != SeverityRelative {
			t.Errorf("entry %d: %+v", i, got[i])
		}
	}
	if RequiresClearance(got) {
		t.Error("relative contraindications are advisory only")
	}
}

func TestDetect_Ordering(t *testing.T) {
	// positions deliberately out of slice order
	qs := []Question{
		{ID: "h1", Category: CategoryHistory, Weight: 1, Position: 9, Text: "Do you have any chronic medical conditions?"},
		{ID: "p1", Category: CategoryPhysical, Weight: 1, Position: 1, Text: "Pain level"},
	}
	rs := []Response{answer("h1", "a"), answer("p1", "a")}

	got := NewContraindicationDetector().Detect(PatientAttributes{Age: 10}, qs, rs)
	want := []string{"Children Under 12 Years", "Severe Pain Condition", "Multiple Serious Medical Conditions"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Condition != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i].Condition, want[i])
		}
	}
}

func TestDetect_CustomRules(t *testing.T) {
	d := NewContraindicationDetector(MinimumAgeRule{MinAge: 18, Condition: "Minor", Reason: "consent"})
	if got := d.Detect(PatientAttributes{Age: 16}, nil, nil); len(got) != 1 || got[0].Condition != "Minor" {
		t.Errorf("unexpected %+v", got)
	}
}
