package assessment

import "strings"

// RuleInput is everything a contraindication rule may look at. Questions
// are in position order and Responses holds the latest answer per question.
type RuleInput struct {
	Patient   PatientAttributes
	Questions []Question
	Responses map[string]Response
}

// Rule is one independently evaluated contraindication check.
type Rule interface {
	Evaluate(in RuleInput) []Contraindication
}

// MinimumAgeRule flags patients younger than MinAge.
type MinimumAgeRule struct {
	MinAge    int
	Condition string
	Reason    string
}

func (r MinimumAgeRule) Evaluate(in RuleInput) []Contraindication {
	if in.Patient.Age >= r.MinAge {
		return nil
	}
	return []Contraindication{{Severity: SeverityAbsolute, Condition: r.Condition, Reason: r.Reason}}
}

// Topic is a tracked subject in question text.
type Topic struct {
	Match     string
	Condition string
	Reason    string
	Severity  ContraindicationSeverity
}

// ResponseTopicRule flags answers in the two worst bands (a/b) to questions
// mentioning a tracked topic. Every hit is reported, so two pain questions
// answered badly give two entries.
type ResponseTopicRule struct {
	Topics   []Topic
	MaxScore int
}

func (r ResponseTopicRule) Evaluate(in RuleInput) []Contraindication {
	var out []Contraindication
	for _, q := range in.Questions {
		resp, ok := in.Responses[q.ID]
		if !ok || resp.Score > r.MaxScore {
			continue
		}
		text := strings.ToLower(q.Text)
		for _, t := range r.Topics {
			if strings.Contains(text, t.Match) {
				out = append(out, Contraindication{
					Severity:   t.Severity,
					Condition:  t.Condition,
					Reason:     t.Reason,
					QuestionID: q.ID,
				})
			}
		}
	}
	return out
}

// DefaultRules is the clinic rule table: the age floor first, then the
// response topics.
func DefaultRules() []Rule {
	return []Rule{
		MinimumAgeRule{
			MinAge:    12,
			Condition: "Children Under 12 Years",
			Reason:    "Developing nervous system, unable to communicate discomfort effectively",
		},
		ResponseTopicRule{
			MaxScore: 2,
			Topics: []Topic{
				{Match: "pain", Condition: "Severe Pain Condition", Reason: "Requires medical evaluation before therapy", Severity: SeverityRelative},
				{Match: "medical conditions", Condition: "Multiple Serious Medical Conditions", Reason: "Requires physician clearance", Severity: SeverityRelative},
			},
		},
	}
}

// ContraindicationDetector evaluates every rule and concatenates the
// results in rule order.
type ContraindicationDetector struct {
	rules []Rule
}

// NewContraindicationDetector uses DefaultRules when none are given.
func NewContraindicationDetector(rules ...Rule) *ContraindicationDetector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &ContraindicationDetector{rules: rules}
}

func (d *ContraindicationDetector) Detect(patient PatientAttributes, questions []Question, responses []Response) []Contraindication {
	ordered := make([]Question, len(questions))
	copy(ordered, questions)
	sortQuestions(ordered)

	in := RuleInput{Patient: patient, Questions: ordered, Responses: LatestResponses(responses)}
	out := []Contraindication{}
	for _, r := range d.rules {
		out = append(out, r.Evaluate(in)...)
	}
	return out
}
