package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// validateLocationRecords runs the full rule battery over one parsed upload.
// The column-structure precondition is fatal alone and returns a
// *tabular.StructureError; every other rule is collected into a single
// *tabular.RecordError (nil when the file is clean). persisted carries the
// survey's existing wide rows and is nil outside append mode.
func validateLocationRecords(
	table *tabular.Table,
	h *domain.GeoLevelHierarchy,
	mapping *domain.LocationColumnMapping,
	persisted []domain.WideRow,
) (*tabular.RecordError, error) {
	expected := mapping.Columns()
	if problems := tabular.CheckStructure(table, expected); len(problems) > 0 {
		return nil, &tabular.StructureError{Problems: problems}
	}

	report := tabular.NewReport(table)

	// Every mapped column is mandatory: a row missing any level's id or name
	// cannot be placed in the hierarchy.
	if issues := tabular.BlankCells(table, expected); len(issues) > 0 {
		report.Add("blank_values",
			fmt.Sprintf("Blank values in mandatory columns on row(s): %s", issueNumbers(issues)),
			issues)
	}

	if rows := tabular.ExactDuplicateRows(table); len(rows) > 0 {
		report.Add("duplicate_rows",
			fmt.Sprintf("Duplicate rows on row(s): %s", tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, "row is an exact duplicate of another row in the file"))
	}

	bottomMapping, _ := mapping.ForLevel(h.Bottom().UID)
	if rows := tabular.DuplicateKeyRows(table, bottomMapping.IDColumn); len(rows) > 0 {
		report.Add("duplicate_location_ids",
			fmt.Sprintf("Duplicate values in column %q on row(s): %s",
				bottomMapping.IDColumn, tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, fmt.Sprintf("value in column %q is duplicated in the file", bottomMapping.IDColumn)))
	}

	if len(persisted) > 0 {
		if issues := persistedDuplicateIssues(table, h, mapping, persisted); len(issues) > 0 {
			report.Add("duplicate_with_existing_data",
				fmt.Sprintf("Row(s) duplicate locations that already exist: %s", issueNumbers(issues)),
				issues)
		}
	}

	if issues := multiParentIssues(table, h, mapping, persisted); len(issues) > 0 {
		report.Add("multiple_parents",
			fmt.Sprintf("Location ids assigned to multiple parent locations on row(s): %s", issueNumbers(issues)),
			issues)
	}

	if issues := multiNameIssues(table, h, mapping, persisted); len(issues) > 0 {
		report.Add("multiple_names",
			fmt.Sprintf("Location ids with multiple names on row(s): %s", issueNumbers(issues)),
			issues)
	}

	return report.Finalize(), nil
}

// persistedDuplicateIssues flags uploaded rows whose full mapped column set
// reproduces an existing wide row. Such rows add nothing in append mode and
// are re-uploads by definition.
func persistedDuplicateIssues(
	table *tabular.Table,
	h *domain.GeoLevelHierarchy,
	mapping *domain.LocationColumnMapping,
	persisted []domain.WideRow,
) []tabular.RowIssue {
	existing := make(map[string]struct{}, len(persisted))
	for _, wr := range persisted {
		existing[wideRowKey(h, wr)] = struct{}{}
	}

	var issues []tabular.RowIssue
	for _, row := range table.Rows {
		if _, dup := existing[uploadedRowKey(table, h, mapping, row)]; dup {
			issues = append(issues, tabular.RowIssue{
				Number:  row.Number,
				Message: "row duplicates a location record that already exists",
			})
		}
	}
	return issues
}

// multiParentIssues checks, level by level from the leaf up, that every
// business key resolves to a single parent business key across the combined
// persisted and uploaded dataset. Every uploaded row participating in a
// conflict is named.
func multiParentIssues(
	table *tabular.Table,
	h *domain.GeoLevelHierarchy,
	mapping *domain.LocationColumnMapping,
	persisted []domain.WideRow,
) []tabular.RowIssue {
	var issues []tabular.RowIssue

	for i := len(h.Ordered) - 1; i >= 1; i-- {
		level := h.Ordered[i]
		parentLevel, _ := h.LevelAbove(level.UID)
		own, _ := mapping.ForLevel(level.UID)
		parent, _ := mapping.ForLevel(parentLevel.UID)

		groups := newKeyGroups()
		for _, row := range table.Rows {
			groups.add(table.Get(row, own.IDColumn), table.Get(row, parent.IDColumn), row.Number)
		}
		for _, wr := range persisted {
			groups.add(wr[level.UID].ID, wr[parentLevel.UID].ID, 0)
		}

		for _, key := range groups.conflictedKeys() {
			for _, n := range groups.rowNumbers(key) {
				issues = append(issues, tabular.RowIssue{
					Number: n,
					Message: fmt.Sprintf("%s id %q is assigned to multiple %s locations",
						level.Name, key, parentLevel.Name),
				})
			}
		}
	}
	return issues
}

// multiNameIssues checks, level by level, that every business key carries a
// single display name across the combined dataset.
func multiNameIssues(
	table *tabular.Table,
	h *domain.GeoLevelHierarchy,
	mapping *domain.LocationColumnMapping,
	persisted []domain.WideRow,
) []tabular.RowIssue {
	var issues []tabular.RowIssue

	for i := len(h.Ordered) - 1; i >= 0; i-- {
		level := h.Ordered[i]
		own, _ := mapping.ForLevel(level.UID)

		groups := newKeyGroups()
		for _, row := range table.Rows {
			groups.add(table.Get(row, own.IDColumn), table.Get(row, own.NameColumn), row.Number)
		}
		for _, wr := range persisted {
			groups.add(wr[level.UID].ID, wr[level.UID].Name, 0)
		}

		for _, key := range groups.conflictedKeys() {
			for _, n := range groups.rowNumbers(key) {
				issues = append(issues, tabular.RowIssue{
					Number: n,
					Message: fmt.Sprintf("%s id %q has more than one name: %s",
						level.Name, key, strings.Join(groups.values(key), ", ")),
				})
			}
		}
	}
	return issues
}

// keyGroups groups (business key → associated value) pairs and remembers
// which uploaded rows contributed each pair. Persisted rows contribute
// values with row number 0, which never appears in issues.
type keyGroups struct {
	byKey map[string]map[string][]int
}

func newKeyGroups() *keyGroups {
	return &keyGroups{byKey: make(map[string]map[string][]int)}
}

func (g *keyGroups) add(key, value string, rowNumber int) {
	if key == "" || value == "" {
		return // blank cells are the mandatory-column rule's business
	}
	if g.byKey[key] == nil {
		g.byKey[key] = make(map[string][]int)
	}
	if rowNumber > 0 {
		g.byKey[key][value] = append(g.byKey[key][value], rowNumber)
	} else if _, seen := g.byKey[key][value]; !seen {
		g.byKey[key][value] = nil
	}
}

// conflictedKeys returns, sorted, every key associated with more than one
// distinct value.
func (g *keyGroups) conflictedKeys() []string {
	var keys []string
	for key, values := range g.byKey {
		if len(values) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (g *keyGroups) rowNumbers(key string) []int {
	var out []int
	for _, rows := range g.byKey[key] {
		out = append(out, rows...)
	}
	sort.Ints(out)
	return out
}

func (g *keyGroups) values(key string) []string {
	out := make([]string, 0, len(g.byKey[key]))
	for v := range g.byKey[key] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func wideRowKey(h *domain.GeoLevelHierarchy, wr domain.WideRow) string {
	parts := make([]string, 0, 2*len(h.Ordered))
	for _, level := range h.Ordered {
		slot := wr[level.UID]
		parts = append(parts, slot.ID, slot.Name)
	}
	return strings.Join(parts, "\x1f")
}

func uploadedRowKey(table *tabular.Table, h *domain.GeoLevelHierarchy, mapping *domain.LocationColumnMapping, row tabular.Row) string {
	columns := make([]string, 0, 2*len(h.Ordered))
	for _, level := range h.Ordered {
		m, _ := mapping.ForLevel(level.UID)
		columns = append(columns, m.IDColumn, m.NameColumn)
	}
	return table.Key(row, columns...)
}

func issueNumbers(issues []tabular.RowIssue) string {
	seen := make(map[int]struct{}, len(issues))
	var rows []int
	for _, issue := range issues {
		if _, ok := seen[issue.Number]; !ok {
			seen[issue.Number] = struct{}{}
			rows = append(rows, issue.Number)
		}
	}
	sort.Ints(rows)
	return tabular.FormatRowNumbers(rows)
}
