package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/targets/domain"
)

func TestTargetMappingColumnsOrderAndRequired(t *testing.T) {
	m, err := domain.NewTargetColumnMapping(domain.MappingInput{
		TargetIDColumn:   "resp_id",
		GenderColumn:     "sex",
		LocationIDColumn: "psu_id",
		CustomFields: []domain.CustomFieldMapping{
			{FieldLabel: "phone", ColumnName: "phone_no"},
			{FieldLabel: "address", ColumnName: "addr"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"resp_id", "sex", "psu_id", "phone_no", "addr"}, m.Columns())
	assert.Equal(t, []string{"resp_id", "psu_id"}, m.RequiredColumns())
	assert.Equal(t, "resp_id", m.TargetIDColumn())
	assert.Empty(t, m.LanguageColumn())
}

func TestTargetMappingRequiresTargetID(t *testing.T) {
	_, err := domain.NewTargetColumnMapping(domain.MappingInput{LanguageColumn: "lang"})
	var mErr *locdomain.MappingError
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, mErr.Problems[0], "target_id column must be declared")
}

func TestTargetMappingRejectsColumnAndLabelCollisions(t *testing.T) {
	_, err := domain.NewTargetColumnMapping(domain.MappingInput{
		TargetIDColumn: "id",
		GenderColumn:   "id",
		CustomFields: []domain.CustomFieldMapping{
			{FieldLabel: "phone", ColumnName: "c1"},
			{FieldLabel: "phone", ColumnName: "c2"},
			{FieldLabel: "gender", ColumnName: "c3"},
		},
	})
	var mErr *locdomain.MappingError
	require.ErrorAs(t, err, &mErr)

	joined := ""
	for _, p := range mErr.Problems {
		joined += p + "\n"
	}
	assert.Contains(t, joined, `custom field label "gender" collides with a built-in field`)
	assert.Contains(t, joined, `custom field label "phone" is declared 2 times`)
	assert.Contains(t, joined, `column "id" is mapped to multiple fields: target id, gender`)
}
