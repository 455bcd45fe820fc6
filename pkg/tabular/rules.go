package tabular

import (
	"fmt"
	"sort"
	"strings"
)

// CheckStructure verifies that every expected column appears in the file
// exactly once and that every file column was expected exactly once. A
// non-empty result means record-level validation must not run.
func CheckStructure(t *Table, expected []string) []string {
	var problems []string

	expectedCount := make(map[string]int, len(expected))
	for _, c := range expected {
		expectedCount[c]++
	}

	for _, c := range expected {
		switch n := t.ColumnCount(c); {
		case n == 0:
			problems = append(problems, fmt.Sprintf("expected column %q is missing from the uploaded file", c))
		case n > 1:
			problems = append(problems, fmt.Sprintf("column %q appears %d times in the uploaded file; it must appear exactly once", c, n))
		}
	}

	reported := make(map[string]struct{})
	for _, c := range t.Columns {
		if _, ok := reported[c]; ok {
			continue
		}
		reported[c] = struct{}{}
		if expectedCount[c] == 0 {
			problems = append(problems, fmt.Sprintf("uploaded column %q is not part of the configured column mapping", c))
		}
	}

	return problems
}

// BlankCells returns, per offending row, the required columns that were blank.
func BlankCells(t *Table, required []string) []RowIssue {
	var issues []RowIssue
	for _, row := range t.Rows {
		var blank []string
		for _, col := range required {
			if t.Get(row, col) == "" {
				blank = append(blank, col)
			}
		}
		if len(blank) > 0 {
			issues = append(issues, RowIssue{
				Number:  row.Number,
				Message: fmt.Sprintf("blank value in mandatory column(s): %s", strings.Join(blank, ", ")),
			})
		}
	}
	return issues
}

// ExactDuplicateRows flags every row whose full cell tuple occurs more than
// once in the file, all occurrences included.
func ExactDuplicateRows(t *Table) []int {
	groups := make(map[string][]int)
	for _, row := range t.Rows {
		key := strings.Join(row.Cells, "\x1f")
		groups[key] = append(groups[key], row.Number)
	}
	var out []int
	for _, rows := range groups {
		if len(rows) > 1 {
			out = append(out, rows...)
		}
	}
	sort.Ints(out)
	return out
}

// DuplicateKeyRows flags every row whose value in the business-key column
// repeats elsewhere in the file, regardless of the other columns. Blank keys
// are left to the mandatory-column rule.
func DuplicateKeyRows(t *Table, keyColumn string) []int {
	groups := make(map[string][]int)
	for _, row := range t.Rows {
		key := t.Get(row, keyColumn)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], row.Number)
	}
	var out []int
	for _, rows := range groups {
		if len(rows) > 1 {
			out = append(out, rows...)
		}
	}
	sort.Ints(out)
	return out
}

// Issues converts a plain row-number list into RowIssues sharing one message.
func Issues(rows []int, message string) []RowIssue {
	issues := make([]RowIssue, len(rows))
	for i, n := range rows {
		issues[i] = RowIssue{Number: n, Message: message}
	}
	return issues
}
