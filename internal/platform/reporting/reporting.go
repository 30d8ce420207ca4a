// Package reporting runs the clinic dashboard measures: fixed SQL queries
// scoped to the caller's clinic, returned as JSON or as a spreadsheet.
package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Measure is one dashboard query. $1 is always the clinic id.
type Measure struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
	SQL         string   `json:"-"`
}

// Result is a measure evaluated for one clinic.
type Result struct {
	MeasureID   string           `json:"measure_id"`
	MeasureName string           `json:"measure_name"`
	ClinicID    string           `json:"clinic_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
}

var catalog = []Measure{
	{
		ID:          "stage-distribution",
		Name:        "Workflow Stage Distribution",
		Description: "Patients currently in each workflow stage",
		Columns:     []string{"stage", "total"},
		SQL: `SELECT current_stage AS stage, COUNT(*) AS total
			FROM workflow_status WHERE clinic_id = $1
			GROUP BY current_stage ORDER BY total DESC`,
	},
	{
		ID:          "incomplete-assessments",
		Name:        "Incomplete Assessments",
		Description: "Assessment sessions started but not completed, by mode",
		Columns:     []string{"mode", "total", "oldest"},
		SQL: `SELECT mode, COUNT(*) AS total, MIN(started_at) AS oldest
			FROM assessment_sessions WHERE clinic_id = $1 AND status = 'in_progress'
			GROUP BY mode ORDER BY mode`,
	},
	{
		ID:          "reassessments-due",
		Name:        "Reassessments Due",
		Description: "Open reassessments due within seven days, with the overdue subset",
		Columns:     []string{"total", "overdue"},
		SQL: `SELECT COUNT(*) AS total,
				COUNT(*) FILTER (WHERE scheduled_at::date < CURRENT_DATE) AS overdue
			FROM reassessments
			WHERE clinic_id = $1 AND status = 'scheduled' AND scheduled_at::date <= CURRENT_DATE + 7`,
	},
	{
		ID:          "contraindication-counts",
		Name:        "Contraindication Counts",
		Description: "Detected contraindications by severity and condition",
		Columns:     []string{"severity", "condition", "total"},
		SQL: `SELECT c->>'severity' AS severity, c->>'condition' AS condition, COUNT(*) AS total
			FROM assessment_sessions s, jsonb_array_elements(s.contraindications) c
			WHERE s.clinic_id = $1
			GROUP BY 1, 2 ORDER BY total DESC`,
	},
	{
		ID:          "persistence-failures",
		Name:        "Workflow Persistence Failures",
		Description: "Stage writes that fell back to the cache in the last seven days",
		Columns:     []string{"stage", "total"},
		SQL: `SELECT to_stage AS stage, COUNT(*) AS total
			FROM workflow_transitions
			WHERE clinic_id = $1 AND kind = 'persistence_failure' AND occurred_at > now() - interval '7 days'
			GROUP BY to_stage ORDER BY total DESC`,
	},
	{
		ID:          "outcomes",
		Name:        "Reassessment Outcomes",
		Description: "Completed reassessments in the last ninety days by where they led",
		Columns:     []string{"outcome", "total", "avg_improvement"},
		SQL: `SELECT CASE
					WHEN (comparison->>'overall_improvement')::int > 30 THEN 'completed'
					WHEN (comparison->>'overall_improvement')::int < -10 THEN 'regressed'
					ELSE 'continued'
				END AS outcome,
				COUNT(*) AS total,
				ROUND(AVG((comparison->>'overall_improvement')::int)) AS avg_improvement
			FROM reassessments
			WHERE clinic_id = $1 AND status = 'completed' AND comparison IS NOT NULL
				AND completed_at > now() - interval '90 days'
			GROUP BY 1 ORDER BY total DESC`,
	},
}

// Measures lists every measure in display order.
func Measures() []Measure {
	return append([]Measure(nil), catalog...)
}

// Lookup finds a measure by id.
func Lookup(id string) (Measure, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Measure{}, false
}

// Querier is the read side of the store.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Evaluate runs m for clinicID.
func Evaluate(ctx context.Context, q Querier, m Measure, clinicID string, now time.Time) (*Result, error) {
	rows, err := q.Query(ctx, m.SQL, clinicID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []map[string]any{}
	}
	return &Result{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		ClinicID:    clinicID,
		GeneratedAt: now,
		Columns:     m.Columns,
		Rows:        out,
	}, nil
}
