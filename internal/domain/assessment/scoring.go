package assessment

import (
	"math"
	"sort"
	"strings"
)

var letterScores = map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}

// neutralScore is used for any letter outside a..e.
const neutralScore = 3

// LetterScore maps an answer letter to 1..5. Unknown letters score 3.
func LetterScore(letter string) int {
	if s, ok := letterScores[strings.ToLower(strings.TrimSpace(letter))]; ok {
		return s
	}
	return neutralScore
}

// LatestResponses keeps the most recent response per question.
func LatestResponses(responses []Response) map[string]Response {
	latest := make(map[string]Response, len(responses))
	for _, r := range responses {
		cur, ok := latest[r.QuestionID]
		if !ok || !r.CreatedAt.Before(cur.CreatedAt) {
			latest[r.QuestionID] = r
		}
	}
	return latest
}

// ScoringEngine turns responses into category percentages.
type ScoringEngine struct{}

// Score computes the CategoryScoreSet. Responses to questions not in the
// list are ignored; the overall score always averages all five categories.
func (ScoringEngine) Score(questions []Question, responses []Response) CategoryScoreSet {
	latest := LatestResponses(responses)

	type acc struct{ total, weight float64 }
	totals := make(map[Category]*acc, len(Categories))
	for _, c := range Categories {
		totals[c] = &acc{}
	}

	for _, q := range questions {
		r, ok := latest[q.ID]
		if !ok || q.Weight <= 0 {
			continue
		}
		a, ok := totals[q.Category]
		if !ok {
			continue
		}
		a.total += float64(r.Score) * q.Weight
		a.weight += q.Weight
	}

	set := CategoryScoreSet{Scores: make(map[Category]int, len(Categories))}
	sum := 0
	for _, c := range Categories {
		a := totals[c]
		pct := 0
		if a.weight > 0 {
			pct = clampPercent(int(math.Round(100 * a.total / (5 * a.weight))))
		}
		set.Scores[c] = pct
		sum += pct
	}
	set.Overall = int(math.Round(float64(sum) / float64(len(Categories))))
	return set
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// sortQuestions orders questions by position, then id.
func sortQuestions(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Position != qs[j].Position {
			return qs[i].Position < qs[j].Position
		}
		return qs[i].ID < qs[j].ID
	})
}
