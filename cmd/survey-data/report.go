package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/fieldstream/fieldstream/pkg/excel"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// writeReport persists the invalid-records report, picking the format from
// the file extension. An empty path skips the write.
func writeReport(report *tabular.RecordError, path string) error {
	if path == "" {
		return nil
	}

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		raw, err := excel.BuildRecordErrorXLSX(report)
		if err != nil {
			return fmt.Errorf("build report workbook: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "invalid-records report written to %s\n", path)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	columns := report.InvalidRecords.OrderedColumns
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	for _, record := range report.InvalidRecords.Records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = record[col]
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "invalid-records report written to %s\n", path)
	return nil
}
