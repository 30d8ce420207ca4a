package notification

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

const (
	TemplateReportReady          = "report-ready"
	TemplateTreatmentSchedule    = "treatment-schedule"
	TemplateReassessmentReminder = "reassessment-reminder"
)

// Template is a subject/body pair in text/template syntax. Data keys are
// referenced as {{.key}}; a key missing from the data fails the render.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Templates is the set of email templates the dispatcher can render.
type Templates struct {
	mu  sync.RWMutex
	set map[string]compiled
}

var builtIn = []Template{
	{
		ID:      TemplateReportReady,
		Subject: "Your wellness assessment report from {{.clinic_name}}",
		Body: "Dear {{.patient_name}},\n\nYour wellness assessment is complete. Your overall wellness score is {{.overall_score}}%. " +
			"Your full report with {{.therapy_count}} recommended therapies is attached.\n\n{{.clinic_name}}",
	},
	{
		ID:      TemplateTreatmentSchedule,
		Subject: "Your treatment schedule at {{.clinic_name}}",
		Body: "Dear {{.patient_name}},\n\nYour treatment plan has been confirmed. {{.session_count}} sessions are booked starting {{.first_session}}.\n\n" +
			"{{.schedule}}\n\nYour first reassessment is due on {{.reassessment_date}}.\n\n{{.clinic_name}}",
	},
	{
		ID:      TemplateReassessmentReminder,
		Subject: "{{.reminder}} at {{.clinic_name}}",
		Body: "Dear {{.patient_name}},\n\nYour wellness reassessment at {{.clinic_name}} is scheduled for {{.scheduled_date}}. " +
			"Please contact the clinic if you need to change the appointment.",
	},
}

// NewTemplates compiles the built-in templates.
func NewTemplates() *Templates {
	t := &Templates{set: make(map[string]compiled)}
	for _, tpl := range builtIn {
		if err := t.Register(tpl); err != nil {
			panic(err)
		}
	}
	return t
}

// Register compiles tpl and adds it, replacing any template with the same ID.
func (t *Templates) Register(tpl Template) error {
	subject, err := template.New(tpl.ID + ".subject").Option("missingkey=error").Parse(tpl.Subject)
	if err != nil {
		return fmt.Errorf("template %s subject: %w", tpl.ID, err)
	}
	body, err := template.New(tpl.ID + ".body").Option("missingkey=error").Parse(tpl.Body)
	if err != nil {
		return fmt.Errorf("template %s body: %w", tpl.ID, err)
	}
	t.mu.Lock()
	t.set[tpl.ID] = compiled{subject: subject, body: body}
	t.mu.Unlock()
	return nil
}

// Render executes the template id against data.
func (t *Templates) Render(id string, data map[string]string) (subject, body string, err error) {
	t.mu.RLock()
	c, ok := t.set[id]
	t.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}
	var sb, bb strings.Builder
	if err := c.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", id, err)
	}
	if err := c.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", id, err)
	}
	return sb.String(), bb.String(), nil
}
