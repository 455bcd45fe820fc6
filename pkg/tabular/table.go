package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyHeader reports a file whose header row carries no column names.
// Kept distinct from transport-level decoding failures, which are the
// caller's responsibility.
var ErrEmptyHeader = errors.New("uploaded file header row is empty")

// Row is one data row of an uploaded table. Number is the spreadsheet-visible
// row number: the header is row 1, so the first data row is 2.
type Row struct {
	Number int
	Cells  []string
}

// Table is an in-memory uploaded table with a column set fixed at parse time.
// Columns are kept exactly as supplied, duplicates included; cell values are
// whitespace-trimmed and "" marks a blank cell.
type Table struct {
	Columns []string
	Rows    []Row

	index map[string]int // first occurrence of each column name
}

// Parse reads UTF-8 delimited text into a Table. A leading byte-order mark is
// tolerated. Rows whose cell count disagrees with the header are rejected
// here, so every later validation can assume a well-formed table.
func Parse(text string) (*Table, error) {
	text = strings.TrimPrefix(text, "\uFEFF")

	r := csv.NewReader(strings.NewReader(text))
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyHeader
		}
		return nil, fmt.Errorf("parse header row: %w", err)
	}

	empty := true
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] != "" {
			empty = false
		}
	}
	if empty {
		return nil, ErrEmptyHeader
	}

	t := &Table{
		Columns: header,
		index:   make(map[string]int, len(header)),
	}
	for i, name := range header {
		if _, seen := t.index[name]; !seen {
			t.index[name] = i
		}
	}

	number := 1
	for {
		number++
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", number, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, Row{Number: number, Cells: rec})
	}

	return t, nil
}

// Get returns the value of the named column in the given row. When the file
// declares the column more than once the first occurrence wins; structural
// validation rejects such files before record rules run.
func (t *Table) Get(row Row, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i]
}

// ColumnCount returns how many times the named column appears in the header.
func (t *Table) ColumnCount(column string) int {
	n := 0
	for _, c := range t.Columns {
		if c == column {
			n++
		}
	}
	return n
}

// Key concatenates the values of the given columns for a row, for use as a
// grouping key. The separator is unlikely to occur in field data.
func (t *Table) Key(row Row, columns ...string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, t.Get(row, c))
	}
	return strings.Join(parts, "\x1f")
}
