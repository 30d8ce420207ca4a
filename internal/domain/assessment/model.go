package assessment

import (
	"time"

	"github.com/google/uuid"
)

// Category is one of the five fixed questionnaire domains.
type Category string

const (
	CategoryPhysical    Category = "physical"
	CategoryMental      Category = "mental"
	CategoryLifestyle   Category = "lifestyle"
	CategoryEnvironment Category = "environment"
	CategoryHistory     Category = "history"
)

// Categories is the declaration order, used for tie-breaks downstream.
var Categories = []Category{
	CategoryPhysical,
	CategoryMental,
	CategoryLifestyle,
	CategoryEnvironment,
	CategoryHistory,
}

func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Question struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
	Position int      `json:"position"`
	Text     string   `json:"text"`
	// Options maps answer letters a..e to their wording.
	Options map[string]string `json:"options,omitempty"`
}

// Response is immutable; answering a question again inserts a new one and
// the latest wins.
type Response struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Letter     string    `json:"letter"`
	Score      int       `json:"score"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CategoryScoreSet holds wellness percentages (higher is better). A
// category with no answers scores 0.
type CategoryScoreSet struct {
	Scores  map[Category]int `json:"scores"`
	Overall int              `json:"overall_score"`
}

// Score returns the percentage of c, 0 when absent.
func (s CategoryScoreSet) Score(c Category) int {
	return s.Scores[c]
}

// Severity returns the problem-severity view of the set: 100 − wellness
// for every answered category. Unanswered categories are left out.
func (s CategoryScoreSet) Severity() map[Category]int {
	out := make(map[Category]int, len(s.Scores))
	for c, v := range s.Scores {
		if v > 0 {
			out[c] = 100 - v
		}
	}
	return out
}

type ContraindicationSeverity string

const (
	SeverityAbsolute ContraindicationSeverity = "absolute"
	SeverityRelative ContraindicationSeverity = "relative"
)

type Contraindication struct {
	Severity   ContraindicationSeverity `json:"severity"`
	Condition  string                   `json:"condition"`
	Reason     string                   `json:"reason"`
	QuestionID string                   `json:"question_id,omitempty"`
}

// RequiresClearance reports whether any absolute contraindication is present.
func RequiresClearance(cs []Contraindication) bool {
	for _, c := range cs {
		if c.Severity == SeverityAbsolute {
			return true
		}
	}
	return false
}

// PatientAttributes are the patient facts the contraindication rules need.
type PatientAttributes struct {
	Age    int    `json:"age"`
	Gender string `json:"gender,omitempty"`
}

type Mode string

const (
	ModeInitial      Mode = "initial"
	ModeReassessment Mode = "reassessment"
)

const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// Session groups the responses of one questionnaire run.
type Session struct {
	ID                uuid.UUID          `json:"id"`
	PatientID         uuid.UUID          `json:"patient_id"`
	ClinicID          string             `json:"clinic_id"`
	Mode              Mode               `json:"mode"`
	Status            string             `json:"status"`
	Scores            *CategoryScoreSet  `json:"scores,omitempty"`
	Contraindications []Contraindication `json:"contraindications"`
	RequiresClearance bool               `json:"requires_clearance"`
	ClearanceGranted  bool               `json:"clearance_granted"`
	ClearanceBy       string             `json:"clearance_by,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

func (s *Session) Completed() bool { return s.Status == SessionCompleted }

// Cleared reports whether treatment may be assigned.
func (s *Session) Cleared() bool { return !s.RequiresClearance || s.ClearanceGranted }
