package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSX writes r as a single-sheet workbook: a title row, a header row and
// one row per result.
func XLSX(r *Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Measure"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%s (%s, %s)", r.MeasureName, r.ClinicID, r.GeneratedAt.Format("2006-01-02 15:04"))
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return nil, err
	}

	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if len(r.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(r.Columns), 3)
		if err := f.SetCellStyle(sheet, "A3", last, bold); err != nil {
			return nil, err
		}
	}

	for i, row := range r.Rows {
		vals := make([]any, len(r.Columns))
		for j, c := range r.Columns {
			vals[j] = cellValue(row[c])
		}
		cell, _ := excelize.CoordinatesToCellName(1, 4+i)
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04")
	case fmt.Stringer:
		return t.String()
	default:
		return t
	}
}

// Filename is the download name for r.
func Filename(r *Result) string {
	return fmt.Sprintf("%s-%s.xlsx", r.MeasureID, r.GeneratedAt.Format("20060102"))
}
