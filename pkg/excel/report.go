// Package excel renders upload validation reports as XLSX workbooks for
// distribution to field teams.
package excel

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// BuildRecordErrorXLSX renders a validation report as a two-sheet workbook:
// a summary sheet with per-rule totals and an invalid_records sheet
// reproducing every offending row with its errors column.
func BuildRecordErrorXLSX(report *tabular.RecordError) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}

	f := excelize.NewFile()
	summarySheet := "summary"
	recordsSheet := "invalid_records"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(recordsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Upload validation report")
	_ = f.SetCellValue(summarySheet, "A3", "Total records")
	_ = f.SetCellValue(summarySheet, "B3", report.Summary.TotalRecords)
	_ = f.SetCellValue(summarySheet, "A4", "Correct records")
	_ = f.SetCellValue(summarySheet, "B4", report.Summary.CorrectRecords)
	_ = f.SetCellValue(summarySheet, "A5", "Records with errors")
	_ = f.SetCellValue(summarySheet, "B5", report.Summary.RecordsWithErrors)
	_ = f.SetCellValue(summarySheet, "A6", "Total errors")
	_ = f.SetCellValue(summarySheet, "B6", report.Summary.TotalErrors)

	_ = f.SetCellValue(summarySheet, "A8", "Rule")
	_ = f.SetCellValue(summarySheet, "B8", "Count")
	_ = f.SetCellValue(summarySheet, "C8", "Message")
	for i, rule := range report.SummaryByErrorType {
		row := i + 9
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), rule.ErrorType)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), rule.Count)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), rule.Message)
	}

	columns := report.InvalidRecords.OrderedColumns
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(recordsSheet, cell, col)
	}
	for r, record := range report.InvalidRecords.Records {
		for c, col := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(recordsSheet, cell, record[col])
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
