package domain

import (
	"fmt"
	"sort"
	"strings"

	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
)

// CustomFieldMapping declares one survey-specific column to capture, keyed
// by a free-form field label.
type CustomFieldMapping struct {
	FieldLabel string `json:"field_label"`
	ColumnName string `json:"column_name"`
}

// MappingInput is a caller-supplied target column mapping before validation.
// Only the target id column is mandatory.
type MappingInput struct {
	TargetIDColumn   string               `json:"target_id"`
	LanguageColumn   string               `json:"language,omitempty"`
	GenderColumn     string               `json:"gender,omitempty"`
	LocationIDColumn string               `json:"location_id_column,omitempty"`
	CustomFields     []CustomFieldMapping `json:"custom_fields,omitempty"`
}

// TargetColumnMapping is a validated mapping from the target logical fields
// to uploaded column names.
type TargetColumnMapping struct {
	input MappingInput
}

// NewTargetColumnMapping validates a mapping: the target id column is
// required, custom field labels must be unique and must not shadow the core
// field names, and every declared column name must be unique across the
// whole mapping. All violations are reported together.
func NewTargetColumnMapping(input MappingInput) (*TargetColumnMapping, error) {
	var problems []string

	input.TargetIDColumn = strings.TrimSpace(input.TargetIDColumn)
	if input.TargetIDColumn == "" {
		problems = append(problems, "a target_id column must be declared")
	}

	reserved := map[string]struct{}{"target_id": {}, "language": {}, "gender": {}, "location_id": {}}
	labelCount := make(map[string]int)
	for i, cf := range input.CustomFields {
		label := strings.TrimSpace(cf.FieldLabel)
		column := strings.TrimSpace(cf.ColumnName)
		input.CustomFields[i] = CustomFieldMapping{FieldLabel: label, ColumnName: column}
		if label == "" || column == "" {
			problems = append(problems, "custom field mappings must declare both a field label and a column name")
			continue
		}
		if _, taken := reserved[label]; taken {
			problems = append(problems, fmt.Sprintf("custom field label %q collides with a built-in field", label))
			continue
		}
		labelCount[label]++
	}
	for _, label := range sortedKeys(labelCount) {
		if n := labelCount[label]; n > 1 {
			problems = append(problems, fmt.Sprintf("custom field label %q is declared %d times", label, n))
		}
	}

	columnUsage := make(map[string][]string)
	use := func(column, field string) {
		if column != "" {
			columnUsage[column] = append(columnUsage[column], field)
		}
	}
	use(input.TargetIDColumn, "target id")
	use(strings.TrimSpace(input.LanguageColumn), "language")
	use(strings.TrimSpace(input.GenderColumn), "gender")
	use(strings.TrimSpace(input.LocationIDColumn), "location id")
	for _, cf := range input.CustomFields {
		use(cf.ColumnName, fmt.Sprintf("custom field %q", cf.FieldLabel))
	}
	for _, column := range sortedKeys(columnUsage) {
		if fields := columnUsage[column]; len(fields) > 1 {
			problems = append(problems, fmt.Sprintf(
				"column %q is mapped to multiple fields: %s", column, strings.Join(fields, ", "),
			))
		}
	}

	if len(problems) > 0 {
		return nil, &locdomain.MappingError{Problems: problems}
	}

	input.LanguageColumn = strings.TrimSpace(input.LanguageColumn)
	input.GenderColumn = strings.TrimSpace(input.GenderColumn)
	input.LocationIDColumn = strings.TrimSpace(input.LocationIDColumn)
	return &TargetColumnMapping{input: input}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *TargetColumnMapping) TargetIDColumn() string   { return m.input.TargetIDColumn }
func (m *TargetColumnMapping) LanguageColumn() string   { return m.input.LanguageColumn }
func (m *TargetColumnMapping) GenderColumn() string     { return m.input.GenderColumn }
func (m *TargetColumnMapping) LocationIDColumn() string { return m.input.LocationIDColumn }

func (m *TargetColumnMapping) CustomFields() []CustomFieldMapping {
	return m.input.CustomFields
}

// Columns lists every mapped column: target id first, then the optional core
// fields, then custom fields in declared order. This is the exact column set
// an uploaded file must carry.
func (m *TargetColumnMapping) Columns() []string {
	out := []string{m.input.TargetIDColumn}
	for _, c := range []string{m.input.LanguageColumn, m.input.GenderColumn, m.input.LocationIDColumn} {
		if c != "" {
			out = append(out, c)
		}
	}
	for _, cf := range m.input.CustomFields {
		out = append(out, cf.ColumnName)
	}
	return out
}

// RequiredColumns are the columns that must not contain blank values: the
// business key, plus the location reference when one is mapped.
func (m *TargetColumnMapping) RequiredColumns() []string {
	out := []string{m.input.TargetIDColumn}
	if m.input.LocationIDColumn != "" {
		out = append(out, m.input.LocationIDColumn)
	}
	return out
}

// Input returns the validated mapping in its wire shape, for persistence.
func (m *TargetColumnMapping) Input() MappingInput {
	return m.input
}
