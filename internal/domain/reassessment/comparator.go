package reassessment

import (
	"math"

	"github.com/celloxen/intake/internal/domain/assessment"
)

// Snapshot is a category → problem-severity map (higher = worse).
type Snapshot map[assessment.Category]int

// SnapshotFromScores converts a wellness score set to severity, leaving
// unanswered categories out.
func SnapshotFromScores(s *assessment.CategoryScoreSet) Snapshot {
	if s == nil {
		return nil
	}
	return Snapshot(s.Severity())
}

type Classification string

const (
	Improved Classification = "improved"
	Declined Classification = "declined"
	Stable   Classification = "stable"
)

type CategoryChange struct {
	Category       assessment.Category `json:"category"`
	Previous       int                 `json:"previous_score"`
	Current        int                 `json:"current_score"`
	Improvement    int                 `json:"change"`
	PercentChange  float64             `json:"percent_change"`
	Classification Classification      `json:"classification"`
}

type ComparisonResult struct {
	Improvements       []CategoryChange `json:"improvements"`
	Declines           []CategoryChange `json:"declines"`
	Stable             []CategoryChange `json:"stable"`
	OverallImprovement int              `json:"overall_improvement"`
}

// Comparator diffs two severity snapshots.
type Comparator struct {
	// Threshold is the change beyond which a category counts as improved
	// or declined.
	Threshold int
}

func NewComparator() Comparator {
	return Comparator{Threshold: 10}
}

// Compare walks every category of the previous snapshot in declaration
// order. A category missing from current is treated as unchanged. The
// result is undefined (ok == false) when either snapshot is absent or the
// previous one is empty.
func (c Comparator) Compare(previous, current Snapshot) (ComparisonResult, bool) {
	if len(previous) == 0 || current == nil {
		return ComparisonResult{}, false
	}
	res := ComparisonResult{
		Improvements: []CategoryChange{},
		Declines:     []CategoryChange{},
		Stable:       []CategoryChange{},
	}
	total, n := 0, 0
	for _, cat := range assessment.Categories {
		prev, ok := previous[cat]
		if !ok {
			continue
		}
		curr, ok := current[cat]
		if !ok {
			curr = prev
		}
		change := CategoryChange{
			Category:    cat,
			Previous:    prev,
			Current:     curr,
			Improvement: prev - curr,
		}
		if prev != 0 {
			change.PercentChange = math.Round(float64(change.Improvement)/float64(prev)*1000) / 10
		}
		switch {
		case change.Improvement > c.Threshold:
			change.Classification = Improved
			res.Improvements = append(res.Improvements, change)
		case change.Improvement < -c.Threshold:
			change.Classification = Declined
			res.Declines = append(res.Declines, change)
		default:
			change.Classification = Stable
			res.Stable = append(res.Stable, change)
		}
		total += change.Improvement
		n++
	}
	if n > 0 {
		res.OverallImprovement = int(math.Round(float64(total) / float64(n)))
	}
	return res, true
}
