package tabular_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/pkg/tabular"
)

func TestParseNumbersRowsFromTwo(t *testing.T) {
	table, err := tabular.Parse("district_id,district_name\nD1,North\nD2,South\nD3,East\n")
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, 2, table.Rows[0].Number)
	assert.Equal(t, 3, table.Rows[1].Number)
	assert.Equal(t, 4, table.Rows[2].Number)
}

func TestParseTrimsAndNormalizesBlanks(t *testing.T) {
	table, err := tabular.Parse("id,name\n  D1 ,  \n")
	require.NoError(t, err)

	row := table.Rows[0]
	assert.Equal(t, "D1", table.Get(row, "id"))
	assert.Equal(t, "", table.Get(row, "name"))
}

func TestParseEmptyHeader(t *testing.T) {
	_, err := tabular.Parse("")
	assert.ErrorIs(t, err, tabular.ErrEmptyHeader)

	_, err = tabular.Parse(" , , \nD1,North,X\n")
	assert.ErrorIs(t, err, tabular.ErrEmptyHeader)
}

func TestParseStripsByteOrderMark(t *testing.T) {
	table, err := tabular.Parse("\uFEFFid,name\nD1,North\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, table.Columns)
}

func TestParseRejectsRaggedRows(t *testing.T) {
	_, err := tabular.Parse("id,name\nD1\n")
	assert.Error(t, err)
}

func TestKeyJoinsColumnsInOrder(t *testing.T) {
	table, err := tabular.Parse("district_id,district_name,psu_id\nD1,North,P1\n")
	require.NoError(t, err)

	row := table.Rows[0]
	assert.Equal(t, "D1\x1fP1", table.Key(row, "district_id", "psu_id"))
	assert.Equal(t, table.Key(row, "district_id", "psu_id"), table.Key(row, "district_id", "psu_id"))
	assert.NotEqual(t, table.Key(row, "district_id", "psu_id"), table.Key(row, "psu_id", "district_id"))
}

func TestCheckStructure(t *testing.T) {
	table, err := tabular.Parse("a,b,b\nx,y,z\n")
	require.NoError(t, err)

	problems := tabular.CheckStructure(table, []string{"a", "b", "c"})
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], `"b" appears 2 times`)
	assert.Contains(t, problems[1], `"c" is missing`)

	problems = tabular.CheckStructure(table, []string{"a"})
	assert.NotEmpty(t, problems)
}

func TestExactDuplicateRowsFlagsAllOccurrences(t *testing.T) {
	table, err := tabular.Parse("id,name\nD1,North\nD2,South\nD1,North\n")
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4}, tabular.ExactDuplicateRows(table))
}

func TestDuplicateKeyRowsIgnoresOtherColumns(t *testing.T) {
	table, err := tabular.Parse("id,name\nD1,North\nD2,South\nD1,Elsewhere\n")
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4}, tabular.DuplicateKeyRows(table, "id"))
	assert.Empty(t, tabular.ExactDuplicateRows(table))
}

func TestBlankCellsNamesOffendingColumns(t *testing.T) {
	table, err := tabular.Parse("id,name\n,North\nD2,\n")
	require.NoError(t, err)

	issues := tabular.BlankCells(table, []string{"id", "name"})
	require.Len(t, issues, 2)
	assert.Equal(t, 2, issues[0].Number)
	assert.Contains(t, issues[0].Message, "id")
	assert.Equal(t, 3, issues[1].Number)
	assert.Contains(t, issues[1].Message, "name")
}

func TestReportAggregatesPerRowInRuleOrder(t *testing.T) {
	table, err := tabular.Parse("id,name\n,North\n,North\n")
	require.NoError(t, err)

	report := tabular.NewReport(table)
	report.Add("blank_field", "mandatory columns contain blank values", tabular.Issues([]int{2, 3}, "blank value in mandatory column(s): id"))
	report.Add("duplicate_rows", "duplicate rows found", tabular.Issues([]int{2, 3}, "row is a duplicate of another row in the file"))

	recErr := report.Finalize()
	require.NotNil(t, recErr)

	assert.Equal(t, 2, recErr.Summary.TotalRecords)
	assert.Equal(t, 0, recErr.Summary.CorrectRecords)
	assert.Equal(t, 2, recErr.Summary.RecordsWithErrors)
	assert.Equal(t, 4, recErr.Summary.TotalErrors)

	require.Len(t, recErr.SummaryByErrorType, 2)
	assert.Equal(t, "blank_field", recErr.SummaryByErrorType[0].ErrorType)
	assert.Equal(t, []int{2, 3}, recErr.SummaryByErrorType[0].RowNumbers)

	require.Len(t, recErr.InvalidRecords.Records, 2)
	assert.Equal(t, []string{"id", "name", "errors"}, recErr.InvalidRecords.OrderedColumns)
	assert.Equal(t,
		"blank value in mandatory column(s): id; row is a duplicate of another row in the file",
		recErr.InvalidRecords.Records[0]["errors"],
	)
}

func TestReportFinalizeNilWhenClean(t *testing.T) {
	table, err := tabular.Parse("id\nD1\n")
	require.NoError(t, err)

	assert.Nil(t, tabular.NewReport(table).Finalize())
}

func TestRowNumbersWithErrors(t *testing.T) {
	table, err := tabular.Parse("id\nD1\nD1\nD3\n")
	require.NoError(t, err)

	report := tabular.NewReport(table)
	report.Add("blank_field", "blank ids", tabular.Issues([]int{3, 2}, "blank value"))
	report.Add("duplicate_rows", "dupes", tabular.Issues([]int{2}, "duplicate"))

	recErr := report.Finalize()
	require.NotNil(t, recErr)
	assert.Equal(t, []int{2, 3}, recErr.RowNumbersWithErrors())
}
