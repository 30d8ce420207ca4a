package assessment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FollowUpCount is the size of the follow-up questionnaire.
const FollowUpCount = 20

// Follow-up set sources.
const (
	FollowUpGenerated = "generated"
	FollowUpMixed     = "mixed"
	FollowUpFallback  = "fallback"
)

var answerLetters = []string{"a", "b", "c", "d", "e"}

// FollowUpQuestion is one targeted question asked after the general
// questionnaire. Options always carry the five letters a..e.
type FollowUpQuestion struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Text      string            `json:"question"`
	Options   map[string]string `json:"options"`
	FocusArea string            `json:"focus_area,omitempty"`
}

type FollowUpAnswer struct {
	QuestionID string    `json:"question_id"`
	Letter     string    `json:"letter"`
	Score      int       `json:"score"`
	AnsweredAt time.Time `json:"answered_at"`
}

// FollowUpSet is the follow-up questionnaire of one completed session.
// Answers are keyed by question id; answering again replaces the answer.
type FollowUpSet struct {
	SessionID uuid.UUID                 `json:"session_id"`
	Source    string                    `json:"source"`
	Questions []FollowUpQuestion        `json:"questions"`
	Answers   map[string]FollowUpAnswer `json:"answers"`
	CreatedAt time.Time                 `json:"created_at"`
}

func (s *FollowUpSet) question(id string) (FollowUpQuestion, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return FollowUpQuestion{}, false
}

// FollowUpRequest is what a generator tailors the questions to.
type FollowUpRequest struct {
	SessionID uuid.UUID        `json:"session_id"`
	Age       int              `json:"age"`
	Gender    string           `json:"gender,omitempty"`
	Scores    map[Category]int `json:"category_scores"`
}

// FollowUpGenerator proposes tailored follow-up questions. Its output is
// validated and topped up from the fallback bank.
type FollowUpGenerator interface {
	Generate(ctx context.Context, req FollowUpRequest) ([]FollowUpQuestion, error)
}

func validFollowUp(q FollowUpQuestion) bool {
	if strings.TrimSpace(q.Text) == "" || !ValidCategory(q.Category) || len(q.Options) != len(answerLetters) {
		return false
	}
	for _, l := range answerLetters {
		if strings.TrimSpace(q.Options[l]) == "" {
			return false
		}
	}
	return true
}

// BuildFollowUps keeps the well-formed generated questions, fills up to
// FollowUpCount from the fallback bank ordered by the lowest-scoring
// categories, numbers them FU-01.. and reports where they came from.
func BuildFollowUps(generated []FollowUpQuestion, scores map[Category]int) ([]FollowUpQuestion, string) {
	out := make([]FollowUpQuestion, 0, FollowUpCount)
	seen := map[string]bool{}
	for _, q := range generated {
		if len(out) == FollowUpCount {
			break
		}
		key := strings.ToLower(strings.TrimSpace(q.Text))
		if !validFollowUp(q) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	kept := len(out)
	for _, q := range FallbackFollowUps(scores) {
		if len(out) == FollowUpCount {
			break
		}
		key := strings.ToLower(q.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	for i := range out {
		out[i].ID = fmt.Sprintf("FU-%02d", i+1)
	}

	source := FollowUpMixed
	switch {
	case kept == 0:
		source = FollowUpFallback
	case kept == len(out):
		source = FollowUpGenerated
	}
	return out, source
}

// FallbackFollowUps returns the fixed bank with the weakest categories
// first. Unanswered categories go last; ties keep bank order.
func FallbackFollowUps(scores map[Category]int) []FollowUpQuestion {
	rank := func(c Category) int {
		if v, ok := scores[c]; ok && v > 0 {
			return v
		}
		return 101
	}
	out := make([]FollowUpQuestion, len(fallbackBank))
	for i, q := range fallbackBank {
		q.Options = copyOptions(q.Options)
		out[i] = q
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i].Category) < rank(out[j].Category) })
	return out
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func opts(a, b, c, d, e string) map[string]string {
	return map[string]string{"a": a, "b": b, "c": c, "d": d, "e": e}
}

var fallbackBank = []FollowUpQuestion{
	{Category: CategoryPhysical, FocusArea: "neurological/pain", Text: "How frequently do you experience headaches or migraines?",
		Options: opts("Daily severe headaches", "Several times per week", "Weekly headaches", "Occasional mild headaches", "Rarely or never")},
	{Category: CategoryPhysical, FocusArea: "musculoskeletal", Text: "How would you describe your joint mobility and flexibility?",
		Options: opts("Severe stiffness and limited mobility", "Significant stiffness most days", "Moderate stiffness sometimes", "Mild occasional stiffness", "Excellent flexibility")},
	{Category: CategoryPhysical, FocusArea: "digestive", Text: "Do you experience digestive issues such as bloating or discomfort?",
		Options: opts("Severe daily digestive problems", "Frequent digestive issues", "Occasional digestive discomfort", "Rare mild issues", "No digestive problems")},
	{Category: CategoryPhysical, FocusArea: "cardiovascular", Text: "How is your circulation in your extremities?",
		Options: opts("Very poor, always cold or numb", "Poor circulation often", "Sometimes cold hands or feet", "Generally good circulation", "Excellent circulation")},
	{Category: CategoryMental, FocusArea: "anxiety", Text: "Do you experience anxiety in social situations?",
		Options: opts("Severe, I avoid social situations", "High anxiety in most social settings", "Moderate anxiety sometimes", "Mild occasional nervousness", "Comfortable in all social situations")},
	{Category: CategoryMental, FocusArea: "stress management", Text: "How often do you feel overwhelmed by daily tasks?",
		Options: opts("Constantly overwhelmed", "Very often overwhelmed", "Sometimes overwhelmed", "Occasionally overwhelmed", "Rarely feel overwhelmed")},
	{Category: CategoryMental, FocusArea: "cognitive", Text: "How would you rate your memory and concentration?",
		Options: opts("Severe memory problems", "Frequent forgetfulness", "Occasional lapses", "Generally sharp", "Excellent memory and focus")},
	{Category: CategoryPhysical, FocusArea: "musculoskeletal", Text: "Do you experience muscle tension or spasms?",
		Options: opts("Constant painful tension", "Frequent spasms", "Occasional tension", "Rare mild tension", "No muscle tension")},
	{Category: CategoryPhysical, FocusArea: "respiratory", Text: "How is your breathing during physical activity?",
		Options: opts("Breathless with minimal effort", "Breathless with moderate effort", "Some breathlessness when active", "Slight breathlessness when very active", "No breathing difficulty")},
	{Category: CategoryPhysical, FocusArea: "dermatological", Text: "Do you experience skin conditions or sensitivities?",
		Options: opts("Severe chronic skin problems", "Frequent flare-ups", "Occasional irritation", "Rare mild sensitivity", "Healthy skin")},
	{Category: CategoryLifestyle, FocusArea: "metabolic", Text: "How often do you experience fatigue after meals?",
		Options: opts("After every meal", "After most meals", "Sometimes", "Rarely", "Never")},
	{Category: CategoryLifestyle, FocusArea: "fitness", Text: "How would you rate your recovery after physical activity?",
		Options: opts("Days of exhaustion", "Slow recovery", "Average recovery", "Good recovery", "Quick recovery")},
	{Category: CategoryHistory, FocusArea: "endocrine", Text: "Do you experience hormonal imbalances or related symptoms?",
		Options: opts("Severe, diagnosed imbalance", "Frequent symptoms", "Occasional symptoms", "Rare mild symptoms", "No hormonal symptoms")},
	{Category: CategoryPhysical, FocusArea: "spinal", Text: "How often do you experience back pain?",
		Options: opts("Constant severe pain", "Frequent pain", "Occasional pain", "Rare mild discomfort", "Never")},
	{Category: CategoryEnvironment, FocusArea: "thermoregulation", Text: "Do you have difficulty with temperature regulation?",
		Options: opts("Severe, always too hot or cold", "Frequent difficulty", "Occasional difficulty", "Rare mild difficulty", "No difficulty")},
	{Category: CategoryPhysical, FocusArea: "inflammatory", Text: "How often do you experience inflammation or swelling?",
		Options: opts("Chronic daily swelling", "Frequent swelling", "Occasional swelling", "Rare mild swelling", "Never")},
	{Category: CategoryPhysical, FocusArea: "neurological", Text: "Do you experience issues with balance or coordination?",
		Options: opts("Severe, frequent falls", "Frequent unsteadiness", "Occasional unsteadiness", "Rare mild issues", "Excellent balance")},
	{Category: CategoryHistory, FocusArea: "immune", Text: "How would you rate your immune system function?",
		Options: opts("Constantly unwell", "Frequent infections", "Average, a few colds a year", "Rarely ill", "Excellent immunity")},
	{Category: CategoryPhysical, FocusArea: "lymphatic", Text: "Do you experience water retention or lymphatic issues?",
		Options: opts("Severe daily retention", "Frequent puffiness", "Occasional retention", "Rare mild retention", "No retention")},
	{Category: CategoryMental, FocusArea: "emotional regulation", Text: "How often do you experience mood swings?",
		Options: opts("Several times a day", "Daily", "Weekly", "Occasionally", "Rarely or never")},
}

// HTTPFollowUpGenerator asks a question-generation service for tailored
// follow-ups. The service answers with a JSON array of questions.
type HTTPFollowUpGenerator struct {
	client *resty.Client
	logger zerolog.Logger
}

func NewHTTPFollowUpGenerator(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPFollowUpGenerator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPFollowUpGenerator{client: client, logger: logger.With().Str("component", "followup_generator").Logger()}
}

func (g *HTTPFollowUpGenerator) Generate(ctx context.Context, req FollowUpRequest) ([]FollowUpQuestion, error) {
	var out []FollowUpQuestion
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/generate-questions")
	if err != nil {
		return nil, fmt.Errorf("follow-up generator request: %w", err)
	}
	if resp.IsError() {
		g.logger.Warn().Int("status_code", resp.StatusCode()).Str("session_id", req.SessionID.String()).Msg("follow-up generator refused")
		return nil, fmt.Errorf("follow-up generator status %d", resp.StatusCode())
	}
	return out, nil
}
