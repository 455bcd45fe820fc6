package tabular

import (
	"sort"
	"strings"
)

// RowIssue is one rule hit on one row, with the per-row portion of the
// message (what exactly was wrong on that row).
type RowIssue struct {
	Number  int
	Message string
}

// Report accumulates rule results over one validation pass. Rules are kept in
// the order they were added so per-row messages concatenate in
// rule-evaluation order.
type Report struct {
	table  *Table
	rules  []RuleResult
	perRow map[int][]string
}

func NewReport(t *Table) *Report {
	return &Report{table: t, perRow: make(map[int][]string)}
}

// Add records one rule's outcome. Issues may name the same row more than
// once; each occurrence contributes its own message.
func (r *Report) Add(errorType, message string, issues []RowIssue) {
	if len(issues) == 0 {
		return
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })

	rows := make([]int, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, issue.Number)
		r.perRow[issue.Number] = append(r.perRow[issue.Number], issue.Message)
	}
	r.rules = append(r.rules, RuleResult{
		ErrorType:  errorType,
		Message:    message,
		Count:      len(issues),
		RowNumbers: rows,
	})
}

func (r *Report) HasErrors() bool {
	return len(r.rules) > 0
}

// Finalize returns the aggregated error, or nil when no rule fired.
func (r *Report) Finalize() *RecordError {
	if !r.HasErrors() {
		return nil
	}

	totalErrors := 0
	for _, rule := range r.rules {
		totalErrors += rule.Count
	}

	columns := append(append([]string{}, r.table.Columns...), "errors")
	var records []map[string]string
	for _, row := range r.table.Rows {
		messages, bad := r.perRow[row.Number]
		if !bad {
			continue
		}
		rec := make(map[string]string, len(columns))
		for i, col := range r.table.Columns {
			if i < len(row.Cells) {
				rec[col] = row.Cells[i]
			}
		}
		rec["errors"] = strings.Join(messages, "; ")
		records = append(records, rec)
	}

	return &RecordError{
		Summary: Summary{
			TotalRecords:      len(r.table.Rows),
			CorrectRecords:    len(r.table.Rows) - len(r.perRow),
			RecordsWithErrors: len(r.perRow),
			TotalErrors:       totalErrors,
		},
		SummaryByErrorType: r.rules,
		InvalidRecords: InvalidRecords{
			OrderedColumns: columns,
			Records:        records,
		},
	}
}
