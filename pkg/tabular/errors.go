package tabular

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StructureError reports file-level defects: expected columns missing from
// the upload, or uploaded columns that were never expected. It aborts record
// validation entirely, because the row-level rules assume a well-formed table.
type StructureError struct {
	Problems []string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("uploaded file structure is invalid: %s", strings.Join(e.Problems, "; "))
}

// RuleResult is one validation rule's aggregate outcome across the file.
type RuleResult struct {
	ErrorType  string `json:"error_type"`
	Message    string `json:"error_message"`
	Count      int    `json:"error_count"`
	RowNumbers []int  `json:"row_numbers_with_errors"`
}

// Summary counts rows and rule hits for one validation pass.
type Summary struct {
	TotalRecords      int `json:"total_records"`
	CorrectRecords    int `json:"correct_records"`
	RecordsWithErrors int `json:"records_with_errors"`
	TotalErrors       int `json:"total_errors"`
}

// InvalidRecords reproduces every offending row with its original columns
// plus a trailing free-text "errors" column.
type InvalidRecords struct {
	OrderedColumns []string            `json:"ordered_columns"`
	Records        []map[string]string `json:"records"`
}

// RecordError aggregates every rule violation found in one validation pass.
// It is built once, raised once; callers either reject the upload or filter
// the flagged rows and persist the remainder.
type RecordError struct {
	Summary            Summary        `json:"summary"`
	SummaryByErrorType []RuleResult   `json:"summary_by_error_type"`
	InvalidRecords     InvalidRecords `json:"invalid_records"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf(
		"record validation failed: %d of %d rows have errors (%d errors total)",
		e.Summary.RecordsWithErrors, e.Summary.TotalRecords, e.Summary.TotalErrors,
	)
}

// RowNumbersWithErrors returns the distinct offending row numbers in
// ascending order, for callers that drop flagged rows before persisting.
func (e *RecordError) RowNumbersWithErrors() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, rule := range e.SummaryByErrorType {
		for _, n := range rule.RowNumbers {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	sort.Ints(out)
	return out
}

// FormatRowNumbers renders row numbers for embedding in rule messages.
func FormatRowNumbers(rows []int) string {
	parts := make([]string, len(rows))
	for i, n := range rows {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
