package assessment

import (
	"testing"
	"time"
)

func q(id string, c Category, weight float64, pos int) Question {
	return Question{ID: id, Category: c, Weight: weight, Position: pos, Text: "question " + id}
}

func answer(qid, letter string) Response {
	return Response{QuestionID: qid, Letter: letter, Score: LetterScore(letter)}
}

func TestLetterScore(t *testing.T) {
	tests := map[string]int{
		"a": 1, "b": 2, "c": 3, "d": 4, "e": 5,
		"A": 1, " e ": 5, "f": 3, "": 3, "zz": 3,
	}
	for in, want := range tests {
		if got := LetterScore(in); got != want {
			t.Errorf("LetterScore(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestScore_AllWorstAnswers(t *testing.T) {
	var qs []Question
	var rs []Response
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		qs = append(qs, q(id, CategoryPhysical, 1, i))
		rs = append(rs, answer(id, "a"))
	}

	set := ScoringEngine{}.Score(qs, rs)
	if set.Score(CategoryPhysical) != 20 {
		t.Errorf("expected physical 20, got %d", set.Score(CategoryPhysical))
	}
	// four empty categories pull the mean down: 20/5
	if set.Overall != 4 {
		t.Errorf("expected overall 4, got %d", set.Overall)
	}
}

func TestScore_Weighted(t *testing.T) {
	qs := []Question{
		q("m1", CategoryMental, 2, 1),
		q("m2", CategoryMental, 1, 2),
	}
	rs := []Response{answer("m1", "e"), answer("m2", "a")}

	// (5*2 + 1*1) / (5*3) = 11/15 = 73.3
	set := ScoringEngine{}.Score(qs, rs)
	if set.Score(CategoryMental) != 73 {
		t.Errorf("expected 73, got %d", set.Score(CategoryMental))
	}
}

func TestScore_UnansweredCategoriesAreZero(t *testing.T) {
	qs := []Question{q("l1", CategoryLifestyle, 1, 1), q("h1", CategoryHistory, 1, 2)}
	set := ScoringEngine{}.Score(qs, []Response{answer("l1", "e")})

	if len(set.Scores) != len(Categories) {
		t.Fatalf("expected all %d categories present, got %d", len(Categories), len(set.Scores))
	}
	if set.Score(CategoryHistory) != 0 || set.Score(CategoryPhysical) != 0 {
		t.Errorf("unanswered categories should be 0: %+v", set.Scores)
	}
	if set.Overall != 20 {
		t.Errorf("expected overall 20 (100/5), got %d", set.Overall)
	}
}

func TestScore_NoResponses(t *testing.T) {
	set := ScoringEngine{}.Score([]Question{q("p1", CategoryPhysical, 1, 1)}, nil)
	if set.Overall != 0 {
		t.Errorf("expected 0 overall, got %d", set.Overall)
	}
}

func TestScore_LatestResponseWins(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	qs := []Question{q("p1", CategoryPhysical, 1, 1)}
	first := answer("p1", "a")
	first.CreatedAt = base
	second := answer("p1", "e")
	second.CreatedAt = base.Add(time.Minute)

	set := ScoringEngine{}.Score(qs, []Response{second, first})
	if set.Score(CategoryPhysical) != 100 {
		t.Errorf("expected the later answer to count, got %d", set.Score(CategoryPhysical))
	}
}

func TestScore_IgnoresUnknownQuestions(t *testing.T) {
	qs := []Question{q("p1", CategoryPhysical, 1, 1)}
	set := ScoringEngine{}.Score(qs, []Response{answer("p1", "c"), answer("ghost", "a")})
	if set.Score(CategoryPhysical) != 60 {
		t.Errorf("expected 60, got %d", set.Score(CategoryPhysical))
	}
}

func TestScore_PercentagesInRange(t *testing.T) {
	letters := []string{"a", "b", "c", "d", "e"}
	weights := []float64{0.5, 1, 1.5, 2, 3.25}
	for _, c := range Categories {
		for i := range letters {
			for j := range weights {
				qs := []Question{q("x", c, weights[j], 1), q("y", c, weights[(j+1)%len(weights)], 2)}
				rs := []Response{answer("x", letters[i]), answer("y", letters[(i+2)%len(letters)])}
				set := ScoringEngine{}.Score(qs, rs)
				for cat, v := range set.Scores {
					if v < 0 || v > 100 {
						t.Fatalf("%s out of range: %d", cat, v)
					}
				}
				if set.Overall < 0 || set.Overall > 100 {
					t.Fatalf("overall out of range: %d", set.Overall)
				}
			}
		}
	}
}

func TestSeverity(t *testing.T) {
	set := CategoryScoreSet{Scores: map[Category]int{CategoryPhysical: 40, CategoryMental: 0}}
	sev := set.Severity()
	if sev[CategoryPhysical] != 60 {
		t.Errorf("expected 60, got %d", sev[CategoryPhysical])
	}
	if _, ok := sev[CategoryMental]; ok {
		t.Error("unanswered category should be left out")
	}
}
