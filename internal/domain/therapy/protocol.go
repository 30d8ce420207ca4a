package therapy

import "fmt"

const (
	DefaultFrequency     = "2-3 times per week"
	DefaultTotalSessions = 10
	DefaultProtocolNotes = "Monitor patient response and adjust as needed"
)

// Protocol is the standard delivery plan printed on the report.
type Protocol struct {
	Frequency     string `json:"frequency"`
	Duration      string `json:"duration"`
	TotalSessions int    `json:"total_sessions"`
	Notes         string `json:"notes"`
}

type PlannedTherapy struct {
	Recommendation
	Protocol Protocol `json:"protocol"`
}

func ProtocolFor(durationMinutes int) Protocol {
	return Protocol{
		Frequency:     DefaultFrequency,
		Duration:      fmt.Sprintf("%d minutes per session", durationMinutes),
		TotalSessions: DefaultTotalSessions,
		Notes:         DefaultProtocolNotes,
	}
}

// Plan attaches a protocol to each recommendation.
func Plan(recs []Recommendation) []PlannedTherapy {
	out := make([]PlannedTherapy, 0, len(recs))
	for _, r := range recs {
		out = append(out, PlannedTherapy{Recommendation: r, Protocol: ProtocolFor(r.DurationMinutes)})
	}
	return out
}
