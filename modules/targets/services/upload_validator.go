package services

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/fieldstream/fieldstream/modules/targets/domain"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// validateTargetRecords runs the target rule battery: column structure
// (fatal alone), blank mandatory columns, exact duplicate rows, duplicate
// target ids, re-uploaded business keys in merge mode, and resolution of
// mapped location ids against the persisted bottom-level locations.
// existingKeys is nil outside merge mode; locationUIDs is empty when no
// location column is mapped.
func validateTargetRecords(
	table *tabular.Table,
	mapping *domain.TargetColumnMapping,
	locationUIDs map[string]uuid.UUID,
	existingKeys map[string]struct{},
) (*tabular.RecordError, error) {
	expected := mapping.Columns()
	if problems := tabular.CheckStructure(table, expected); len(problems) > 0 {
		return nil, &tabular.StructureError{Problems: problems}
	}

	report := tabular.NewReport(table)

	if issues := tabular.BlankCells(table, mapping.RequiredColumns()); len(issues) > 0 {
		report.Add("blank_values",
			fmt.Sprintf("Blank values in mandatory columns on row(s): %s", issueNumbers(issues)),
			issues)
	}

	if rows := tabular.ExactDuplicateRows(table); len(rows) > 0 {
		report.Add("duplicate_rows",
			fmt.Sprintf("Duplicate rows on row(s): %s", tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, "row is an exact duplicate of another row in the file"))
	}

	idColumn := mapping.TargetIDColumn()
	if rows := tabular.DuplicateKeyRows(table, idColumn); len(rows) > 0 {
		report.Add("duplicate_target_ids",
			fmt.Sprintf("Duplicate values in column %q on row(s): %s", idColumn, tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, fmt.Sprintf("value in column %q is duplicated in the file", idColumn)))
	}

	if existingKeys != nil {
		var issues []tabular.RowIssue
		for _, row := range table.Rows {
			key := table.Get(row, idColumn)
			if key == "" {
				continue
			}
			if _, taken := existingKeys[key]; taken {
				issues = append(issues, tabular.RowIssue{
					Number:  row.Number,
					Message: fmt.Sprintf("target id %q already exists for this form", key),
				})
			}
		}
		if len(issues) > 0 {
			report.Add("duplicate_with_existing_data",
				fmt.Sprintf("Target ids already uploaded on row(s): %s", issueNumbers(issues)),
				issues)
		}
	}

	if col := mapping.LocationIDColumn(); col != "" {
		var issues []tabular.RowIssue
		for _, row := range table.Rows {
			value := table.Get(row, col)
			if value == "" {
				continue // blanks are the mandatory-column rule's business
			}
			if _, known := locationUIDs[value]; !known {
				issues = append(issues, tabular.RowIssue{
					Number:  row.Number,
					Message: fmt.Sprintf("location id %q does not match any uploaded location", value),
				})
			}
		}
		if len(issues) > 0 {
			report.Add("unresolved_location_ids",
				fmt.Sprintf("Location ids not found on row(s): %s", issueNumbers(issues)),
				issues)
		}
	}

	return report.Finalize(), nil
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
