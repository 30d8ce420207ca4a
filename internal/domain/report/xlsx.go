package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/celloxen/intake/internal/domain/assessment"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetSummary           = "Summary"
	sheetContraindications = "Contraindications"
	sheetTherapies         = "Therapies"
)

var therapyHeader = []string{
	"Priority", "Code", "Therapy", "Category", "Target Domain",
	"Frequency", "Duration", "Sessions", "Notes",
}

var contraindicationHeader = []string{"Severity", "Condition", "Reason", "Question"}

// XLSXRenderer turns a report into the printable workbook attached to the
// report-ready email.
type XLSXRenderer struct {
	ClinicName string
}

// Filename is the attachment name for r.
func Filename(r *Report) string {
	return fmt.Sprintf("wellness-report-%s-%s.xlsx", r.GeneratedAt.Format("2006-01-02"), r.PatientID.String()[:8])
}

func (x XLSXRenderer) Render(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetSummary)
	if err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("create title style: %w", err)
	}

	if err := x.writeSummary(f, r, title, header); err != nil {
		return nil, err
	}
	if err := writeContraindications(f, r, header); err != nil {
		return nil, err
	}
	if err := writeTherapies(f, r, header); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (x XLSXRenderer) writeSummary(f *excelize.File, r *Report, title, header int) error {
	clinic := x.ClinicName
	if clinic == "" {
		clinic = "Wellness Clinic"
	}
	rows := [][]interface{}{
		{clinic + " - Wellness Assessment Report"},
		{},
		{"Patient", r.PatientName},
		{"Age", r.Age},
		{"Gender", r.Gender},
		{"Report Date", r.GeneratedAt.Format("02/01/2006")},
		{"Constitutional Type", orNotDetermined(r.ConstitutionalType)},
		{"Requires Physician Clearance", yesNo(r.RequiresClearance)},
		{},
		{"Category", "Wellness Score (%)", "Severity"},
	}
	for _, c := range assessment.Categories {
		v := r.Scores.Score(c)
		sev := ""
		if v > 0 {
			sev = fmt.Sprint(100 - v)
		}
		rows = append(rows, []interface{}{formatDomain(string(c)), v, sev})
	}
	rows = append(rows, []interface{}{"Overall Wellness", r.Scores.Overall, ""})
	if len(r.IrisDomains) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Iris Findings", strings.Join(r.IrisDomains, ", ")})
	}

	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", "A1", title); err != nil {
		return fmt.Errorf("style title: %w", err)
	}
	if err := f.SetCellStyle(sheetSummary, "A10", "C10", header); err != nil {
		return fmt.Errorf("style score header: %w", err)
	}
	if err := f.SetColWidth(sheetSummary, "A", "A", 30); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return f.SetColWidth(sheetSummary, "B", "C", 20)
}

func writeContraindications(f *excelize.File, r *Report, header int) error {
	if _, err := f.NewSheet(sheetContraindications); err != nil {
		return fmt.Errorf("create contraindications sheet: %w", err)
	}
	rows := [][]interface{}{toRow(contraindicationHeader)}
	for _, c := range r.Contraindications {
		rows = append(rows, []interface{}{string(c.Severity), c.Condition, c.Reason, c.QuestionID})
	}
	if len(r.Contraindications) == 0 {
		rows = append(rows, []interface{}{"none", "No contraindications detected"})
	}
	if err := writeRows(f, sheetContraindications, rows); err != nil {
		return err
	}
	return styleHeader(f, sheetContraindications, len(contraindicationHeader), header, []float64{12, 40, 60, 12})
}

func writeTherapies(f *excelize.File, r *Report, header int) error {
	if _, err := f.NewSheet(sheetTherapies); err != nil {
		return fmt.Errorf("create therapies sheet: %w", err)
	}
	rows := [][]interface{}{toRow(therapyHeader)}
	for _, t := range r.Therapies {
		rows = append(rows, []interface{}{
			t.Label, t.Code, t.Name, t.Category, formatDomain(t.TargetDomain),
			t.Protocol.Frequency, t.Protocol.Duration, t.Protocol.TotalSessions, t.Protocol.Notes,
		})
	}
	if err := writeRows(f, sheetTherapies, rows); err != nil {
		return err
	}
	if err := styleHeader(f, sheetTherapies, len(therapyHeader), header, []float64{12, 10, 30, 16, 18, 20, 24, 10, 40}); err != nil {
		return err
	}
	return f.SetPanes(sheetTherapies, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, cols, style int, widths []float64) error {
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return fmt.Errorf("convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

func toRow(header []string) []interface{} {
	out := make([]interface{}, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

// formatDomain turns "digestive_system" into "Digestive System".
func formatDomain(d string) string {
	words := strings.Fields(strings.ReplaceAll(d, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orNotDetermined(s string) string {
	if s == "" {
		return "Not determined"
	}
	return formatDomain(s)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
