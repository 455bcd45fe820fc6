package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
)

func threeLevels(t *testing.T) *domain.GeoLevelHierarchy {
	t.Helper()
	h, err := domain.NewGeoLevelHierarchy(chain("District", "Mandal", "PSU"))
	require.NoError(t, err)
	return h
}

func mappingFor(h *domain.GeoLevelHierarchy) []domain.GeoLevelMapping {
	entries := make([]domain.GeoLevelMapping, 0, len(h.Ordered))
	for _, level := range h.Ordered {
		entries = append(entries, domain.GeoLevelMapping{
			GeoLevelUID: level.UID,
			IDColumn:    level.Name + " id",
			NameColumn:  level.Name + " name",
		})
	}
	return entries
}

func mappingErr(t *testing.T, err error) *domain.MappingError {
	t.Helper()
	var mErr *domain.MappingError
	require.ErrorAs(t, err, &mErr)
	return mErr
}

func TestColumnMappingColumnsInHierarchyOrder(t *testing.T) {
	h := threeLevels(t)

	m, err := domain.NewLocationColumnMapping(h, mappingFor(h))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"District id", "District name",
		"Mandal id", "Mandal name",
		"PSU id", "PSU name",
	}, m.Columns())

	e, ok := m.ForLevel(h.Bottom().UID)
	require.True(t, ok)
	assert.Equal(t, "PSU id", e.IDColumn)
}

func TestColumnMappingRequiresEveryLevel(t *testing.T) {
	h := threeLevels(t)
	entries := mappingFor(h)[:2] // PSU missing

	_, err := domain.NewLocationColumnMapping(h, entries)
	mErr := mappingErr(t, err)
	require.Len(t, mErr.Problems, 1)
	assert.Equal(t, `no column mapping provided for geo level "PSU"`, mErr.Problems[0])
}

func TestColumnMappingRejectsUnknownAndDuplicateLevels(t *testing.T) {
	h := threeLevels(t)
	entries := mappingFor(h)
	entries = append(entries, domain.GeoLevelMapping{
		GeoLevelUID: uuid.New(), IDColumn: "x", NameColumn: "y",
	})
	entries = append(entries, domain.GeoLevelMapping{
		GeoLevelUID: h.Root().UID, IDColumn: "a", NameColumn: "b",
	})

	_, err := domain.NewLocationColumnMapping(h, entries)
	mErr := mappingErr(t, err)
	require.Len(t, mErr.Problems, 2)
	assert.Contains(t, mErr.Problems[0], "does not belong to this survey")
	assert.Contains(t, mErr.Problems[1], `"District" is mapped more than once`)
}

func TestColumnMappingRejectsBlankColumns(t *testing.T) {
	h := threeLevels(t)
	entries := mappingFor(h)
	entries[1].NameColumn = "   "

	_, err := domain.NewLocationColumnMapping(h, entries)
	mErr := mappingErr(t, err)
	// the blank entry is dropped, so the level is also reported unmapped
	require.Len(t, mErr.Problems, 2)
	assert.Contains(t, mErr.Problems[0], `"Mandal" must declare both`)
	assert.Contains(t, mErr.Problems[1], `no column mapping provided for geo level "Mandal"`)
}

func TestColumnMappingRejectsColumnReuseAcrossFields(t *testing.T) {
	h := threeLevels(t)
	entries := mappingFor(h)
	entries[0].IDColumn = "code"
	entries[2].NameColumn = "code"

	_, err := domain.NewLocationColumnMapping(h, entries)
	mErr := mappingErr(t, err)
	require.Len(t, mErr.Problems, 1)
	assert.Equal(t,
		`column "code" is mapped to multiple fields: District location id, PSU location name`,
		mErr.Problems[0])
}

func TestBuildWideRowsWalksParentChains(t *testing.T) {
	h := threeLevels(t)
	surveyUID := uuid.New()

	district := domain.Location{
		UID: uuid.New(), SurveyUID: surveyUID,
		GeoLevelUID: h.Root().UID, LocationID: "D1", Name: "North",
	}
	mandal := domain.Location{
		UID: uuid.New(), SurveyUID: surveyUID,
		GeoLevelUID: h.Ordered[1].UID, LocationID: "M1", Name: "Hills",
		ParentUID: &district.UID,
	}
	psuA := domain.Location{
		UID: uuid.New(), SurveyUID: surveyUID,
		GeoLevelUID: h.Bottom().UID, LocationID: "P1", Name: "Alpha",
		ParentUID: &mandal.UID,
	}
	psuB := domain.Location{
		UID: uuid.New(), SurveyUID: surveyUID,
		GeoLevelUID: h.Bottom().UID, LocationID: "P2", Name: "Beta",
		ParentUID: &mandal.UID,
	}

	rows := domain.BuildWideRows(h, []domain.Location{district, mandal, psuA, psuB})
	require.Len(t, rows, 2)

	assert.Equal(t, domain.IDName{ID: "D1", Name: "North"}, rows[0][h.Root().UID])
	assert.Equal(t, domain.IDName{ID: "M1", Name: "Hills"}, rows[0][h.Ordered[1].UID])
	assert.Equal(t, domain.IDName{ID: "P1", Name: "Alpha"}, rows[0][h.Bottom().UID])
	assert.Equal(t, domain.IDName{ID: "P2", Name: "Beta"}, rows[1][h.Bottom().UID])
}
