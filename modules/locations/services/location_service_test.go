package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

const uploadHeader = "district_id,district_name,mandal_id,mandal_name,psu_id,psu_name\n"

func recordErr(t *testing.T, err error) *tabular.RecordError {
	t.Helper()
	var rErr *tabular.RecordError
	require.ErrorAs(t, err, &rErr)
	return rErr
}

func ruleTypes(rErr *tabular.RecordError) []string {
	out := make([]string, 0, len(rErr.SummaryByErrorType))
	for _, rule := range rErr.SummaryByErrorType {
		out = append(out, rule.ErrorType)
	}
	return out
}

func TestUploadEndToEndThreeLevels(t *testing.T) {
	f := newFixture(t)
	raw := uploadHeader + "D1,North,M1,Hills,P1,Alpha\n"

	result, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Nil(t, result.Report)

	locations, err := f.repo.Locations(f.ctx, f.surveyUID)
	require.NoError(t, err)
	require.Len(t, locations, 3)

	byLevel := make(map[uuid.UUID]domain.Location)
	for _, l := range locations {
		byLevel[l.GeoLevelUID] = l
	}
	district := byLevel[f.hierarchy.Root().UID]
	mandal := byLevel[f.hierarchy.Ordered[1].UID]
	psu := byLevel[f.hierarchy.Bottom().UID]

	assert.Equal(t, "D1", district.LocationID)
	assert.Nil(t, district.ParentUID)
	require.NotNil(t, mandal.ParentUID)
	assert.Equal(t, district.UID, *mandal.ParentUID)
	require.NotNil(t, psu.ParentUID)
	assert.Equal(t, mandal.UID, *psu.ParentUID)
	assert.Equal(t, "Alpha", psu.Name)
}

func TestUploadOverwriteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	raw := uploadHeader +
		"D1,North,M1,Hills,P1,Alpha\n" +
		"D1,North,M1,Hills,P2,Beta\n"

	for i := 0; i < 2; i++ {
		_, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
		require.NoError(t, err)

		locations, err := f.repo.Locations(f.ctx, f.surveyUID)
		require.NoError(t, err)
		// 1 district + 1 mandal + 2 PSUs, both passes
		assert.Len(t, locations, 4)
	}
}

func TestUploadSharedParentsCollapse(t *testing.T) {
	f := newFixture(t)
	raw := uploadHeader +
		"D1,North,M1,Hills,P1,Alpha\n" +
		"D1,North,M1,Hills,P2,Beta\n" +
		"D1,North,M2,Plains,P3,Gamma\n"

	result, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)
	// 1 district, 2 mandals, 3 PSUs
	assert.Equal(t, 6, result.Inserted)
}

func TestUploadRejectsUnexpectedColumns(t *testing.T) {
	f := newFixture(t)
	raw := "district_id,district_name,mandal_id,mandal_name,psu_id,extra\nD1,North,M1,Hills,P1,x\n"

	_, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	var sErr *tabular.StructureError
	require.ErrorAs(t, err, &sErr)
	require.Len(t, sErr.Problems, 2)
	assert.Contains(t, sErr.Problems[0], `"psu_name" is missing`)
	assert.Contains(t, sErr.Problems[1], `"extra" is not part of the configured column mapping`)

	locations, err := f.repo.Locations(f.ctx, f.surveyUID)
	require.NoError(t, err)
	assert.Empty(t, locations)
}

func TestUploadMultiParentDetectionNamesEveryRow(t *testing.T) {
	f := newFixture(t)
	raw := uploadHeader +
		"D1,North,M1,Hills,X101,Alpha\n" +
		"D2,South,M2,Plains,X101,Alpha\n"

	_, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	rErr := recordErr(t, err)

	var multiParent *tabular.RuleResult
	for i := range rErr.SummaryByErrorType {
		if rErr.SummaryByErrorType[i].ErrorType == "multiple_parents" {
			multiParent = &rErr.SummaryByErrorType[i]
		}
	}
	require.NotNil(t, multiParent)
	assert.Equal(t, []int{2, 3}, multiParent.RowNumbers)
	assert.Contains(t, multiParent.Message, "2, 3")
}

func TestUploadAggregatesRuleMessagesPerRow(t *testing.T) {
	f := newFixture(t)
	// row 3 has a blank mandal_name AND duplicates row 2's psu_id
	raw := uploadHeader +
		"D1,North,M1,Hills,P1,Alpha\n" +
		"D1,North,M1,,P1,Beta\n"

	_, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	rErr := recordErr(t, err)

	assert.Equal(t, 2, rErr.Summary.TotalRecords)
	assert.Equal(t, 2, rErr.Summary.RecordsWithErrors)

	var row3 map[string]string
	for _, rec := range rErr.InvalidRecords.Records {
		if rec["psu_name"] == "Beta" {
			row3 = rec
		}
	}
	require.NotNil(t, row3)
	assert.Equal(t,
		`blank value in mandatory column(s): mandal_name; `+
			`value in column "psu_id" is duplicated in the file; `+
			`PSU id "P1" has more than one name: Alpha, Beta`,
		row3["errors"])
	assert.Equal(t, "errors", rErr.InvalidRecords.OrderedColumns[len(rErr.InvalidRecords.OrderedColumns)-1])
}

func TestUploadAppendDistinguishesDuplicateFromRename(t *testing.T) {
	f := newFixture(t)
	base := uploadHeader + "D1,North,M1,Hills,P1,Alpha\n"
	_, err := f.service.Upload(f.ctx, f.surveyUID, base, services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)

	// exact re-upload: flagged as existing-data duplicate, dropped on
	// partial accept, nothing inserted
	result, err := f.service.Upload(f.ctx, f.surveyUID, base, services.UploadParams{
		Mode:          services.ModeAppend,
		AcceptPartial: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Rejected)
	require.NotNil(t, result.Report)
	assert.Contains(t, ruleTypes(result.Report), "duplicate_with_existing_data")
	assert.NotContains(t, ruleTypes(result.Report), "multiple_names")

	// same key, different name: a rename attempt, not a duplicate
	renamed := uploadHeader + "D1,North,M1,Hills,P1,Omega\n"
	_, err = f.service.Upload(f.ctx, f.surveyUID, renamed, services.UploadParams{Mode: services.ModeAppend})
	rErr := recordErr(t, err)
	assert.Contains(t, ruleTypes(rErr), "multiple_names")
	assert.NotContains(t, ruleTypes(rErr), "duplicate_with_existing_data")
}

func TestUploadAppendInsertsOnlyNewKeys(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(f.ctx, f.surveyUID,
		uploadHeader+"D1,North,M1,Hills,P1,Alpha\n",
		services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)

	result, err := f.service.Upload(f.ctx, f.surveyUID,
		uploadHeader+"D1,North,M1,Hills,P2,Beta\n",
		services.UploadParams{Mode: services.ModeAppend})
	require.NoError(t, err)
	// only the new PSU is written; D1 and M1 already exist
	assert.Equal(t, 1, result.Inserted)

	locations, err := f.repo.Locations(f.ctx, f.surveyUID)
	require.NoError(t, err)
	assert.Len(t, locations, 4)
}

func TestUploadPartialAcceptPersistsCleanRows(t *testing.T) {
	f := newFixture(t)
	raw := uploadHeader +
		"D1,North,M1,Hills,P1,Alpha\n" +
		"D1,North,M1,Hills,,Beta\n"

	result, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{
		Mode:          services.ModeOverwrite,
		AcceptPartial: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 1, result.Rejected)
	require.NotNil(t, result.Report)
	assert.Equal(t, []int{3}, result.Report.RowNumbersWithErrors())
}

func TestReplaceHierarchyPurgesDependentsOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(f.ctx, f.surveyUID,
		uploadHeader+"D1,North,M1,Hills,P1,Alpha\n",
		services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)
	purgesBefore := f.repo.locationPurges

	h, err := f.service.ReplaceHierarchy(f.ctx, f.surveyUID, []domain.GeoLevel{
		{Name: "Region"},
		{Name: "Zone"},
	})
	require.Error(t, err) // Zone has no parent: two roots
	var hErr *domain.HierarchyError
	require.ErrorAs(t, err, &hErr)
	assert.Nil(t, h)
	assert.Equal(t, purgesBefore, f.repo.locationPurges)

	region := domain.GeoLevel{UID: uuid.New(), Name: "Region"}
	zone := domain.GeoLevel{UID: uuid.New(), Name: "Zone", ParentUID: &region.UID}
	h, err = f.service.ReplaceHierarchy(f.ctx, f.surveyUID, []domain.GeoLevel{region, zone})
	require.NoError(t, err)
	require.Len(t, h.Ordered, 2)

	assert.Equal(t, purgesBefore+1, f.repo.locationPurges)
	assert.Equal(t, 1, f.repo.targetLinkPurges)
	assert.Equal(t, 1, f.repo.enumLinkPurges)

	locations, err := f.repo.Locations(f.ctx, f.surveyUID)
	require.NoError(t, err)
	assert.Empty(t, locations)

	levels, err := f.repo.GeoLevels(f.ctx, f.surveyUID)
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}

func TestSetColumnMappingRejectsCollisions(t *testing.T) {
	f := newFixture(t)
	entries, err := f.repo.ColumnMapping(f.ctx, f.surveyUID)
	require.NoError(t, err)
	entries[0].IDColumn = "psu_id"

	_, err = f.service.SetColumnMapping(f.ctx, f.surveyUID, entries)
	var mErr *domain.MappingError
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, mErr.Problems[0], `column "psu_id" is mapped to multiple fields`)
}
