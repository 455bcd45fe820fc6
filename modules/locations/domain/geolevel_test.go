package domain_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
)

func chain(names ...string) []domain.GeoLevel {
	surveyUID := uuid.New()
	levels := make([]domain.GeoLevel, len(names))
	var parent *uuid.UUID
	for i, name := range names {
		l := domain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: name, ParentUID: parent}
		levels[i] = l
		parent = &levels[i].UID
	}
	return levels
}

func hierarchyErr(t *testing.T, err error) *domain.HierarchyError {
	t.Helper()
	var hErr *domain.HierarchyError
	require.ErrorAs(t, err, &hErr)
	return hErr
}

func TestHierarchyOrdersRootToLeaf(t *testing.T) {
	levels := chain("District", "Mandal", "PSU")
	shuffled := []domain.GeoLevel{levels[2], levels[0], levels[1]}

	h, err := domain.NewGeoLevelHierarchy(shuffled)
	require.NoError(t, err)

	require.Len(t, h.Ordered, 3)
	assert.Equal(t, "District", h.Ordered[0].Name)
	assert.Equal(t, "Mandal", h.Ordered[1].Name)
	assert.Equal(t, "PSU", h.Ordered[2].Name)
	assert.Equal(t, "PSU", h.Bottom().Name)

	for i := 1; i < len(h.Ordered); i++ {
		require.NotNil(t, h.Ordered[i].ParentUID)
		assert.Equal(t, h.Ordered[i-1].UID, *h.Ordered[i].ParentUID)
	}

	above, ok := h.LevelAbove(levels[2].UID)
	require.True(t, ok)
	assert.Equal(t, "Mandal", above.Name)
	_, ok = h.LevelAbove(levels[0].UID)
	assert.False(t, ok)
}

func TestHierarchyRejectsEmptyInput(t *testing.T) {
	_, err := domain.NewGeoLevelHierarchy(nil)
	hErr := hierarchyErr(t, err)
	require.Len(t, hErr.Problems, 1)
	assert.Contains(t, hErr.Problems[0], "no geo levels")
}

func TestHierarchyRejectsDuplicateIDsAndNamesBeforeTreeChecks(t *testing.T) {
	levels := chain("District", "Mandal")
	dupUID := levels[0]
	dupUID.Name = "Other"
	levels = append(levels, dupUID)
	levels = append(levels, domain.GeoLevel{UID: uuid.New(), SurveyUID: levels[0].SurveyUID, Name: "Mandal"})

	_, err := domain.NewGeoLevelHierarchy(levels)
	hErr := hierarchyErr(t, err)

	require.Len(t, hErr.Problems, 2)
	assert.Contains(t, hErr.Problems[0], "appears 2 times")
	assert.Contains(t, hErr.Problems[1], `"Mandal" appears 2 times`)
	// the extra root added above must not be reported: duplicate checks abort first
	for _, p := range hErr.Problems {
		assert.NotContains(t, p, "root")
	}
}

func TestHierarchyRejectsZeroAndMultipleRoots(t *testing.T) {
	levels := chain("A", "B")
	other := uuid.New()
	levels[0].ParentUID = &other // nobody is root now, and A's parent is unknown

	_, err := domain.NewGeoLevelHierarchy(levels)
	hErr := hierarchyErr(t, err)
	assert.Contains(t, hErr.Problems[0], "no root geo level")

	levels = chain("A", "B", "C")
	levels[1].ParentUID = nil
	_, err = domain.NewGeoLevelHierarchy(levels)
	hErr = hierarchyErr(t, err)
	assert.Contains(t, hErr.Problems[0], "multiple root geo levels found: A, B")
}

func TestHierarchyDetectsCycle(t *testing.T) {
	// a valid chain plus two levels that parent each other: the detached
	// cycle never joins the walk and both members must be called out
	root := domain.GeoLevel{UID: uuid.New(), Name: "Root"}
	b := domain.GeoLevel{UID: uuid.New(), Name: "B", ParentUID: &root.UID}
	c := domain.GeoLevel{UID: uuid.New(), Name: "C", ParentUID: &b.UID}
	x := domain.GeoLevel{UID: uuid.New(), Name: "X"}
	y := domain.GeoLevel{UID: uuid.New(), Name: "Y"}
	x.ParentUID = &y.UID
	y.ParentUID = &x.UID

	_, err := domain.NewGeoLevelHierarchy([]domain.GeoLevel{root, b, c, x, y})
	hErr := hierarchyErr(t, err)
	assert.NotEmpty(t, hErr.Problems)
	joined := ""
	for _, p := range hErr.Problems {
		joined += p + "\n"
	}
	assert.Contains(t, joined, "X")
	assert.Contains(t, joined, "Y")
}

func TestHierarchySelfReferencingParentDoesNotLoop(t *testing.T) {
	root := domain.GeoLevel{UID: uuid.New(), Name: "Root"}
	selfRef := domain.GeoLevel{UID: uuid.New(), Name: "Loop"}
	selfRef.ParentUID = &selfRef.UID

	_, err := domain.NewGeoLevelHierarchy([]domain.GeoLevel{root, selfRef})
	hErr := hierarchyErr(t, err)
	require.Len(t, hErr.Problems, 1)
	assert.Contains(t, hErr.Problems[0], `"Loop" references itself`)
}

func TestHierarchyRejectsFanOutNamingBothChildren(t *testing.T) {
	root := domain.GeoLevel{UID: uuid.New(), Name: "Country"}
	left := domain.GeoLevel{UID: uuid.New(), Name: "District", ParentUID: &root.UID}
	right := domain.GeoLevel{UID: uuid.New(), Name: "Province", ParentUID: &root.UID}

	_, err := domain.NewGeoLevelHierarchy([]domain.GeoLevel{root, left, right})
	hErr := hierarchyErr(t, err)
	assert.Contains(t, hErr.Problems[0], `"Country" has multiple child levels: District, Province`)
}

func TestHierarchyErrorIsPlainError(t *testing.T) {
	_, err := domain.NewGeoLevelHierarchy(nil)
	var generic error = err
	assert.True(t, errors.As(generic, new(*domain.HierarchyError)))
	assert.Contains(t, generic.Error(), "geo level hierarchy is invalid")
}

func TestHierarchyPrimeAndAbove(t *testing.T) {
	levels := chain("District", "Mandal", "PSU")
	h, err := domain.NewGeoLevelHierarchy(levels)
	require.NoError(t, err)

	upper, ok := h.PrimeAndAbove(levels[1].UID)
	require.True(t, ok)
	require.Len(t, upper, 2)
	assert.Equal(t, "District", upper[0].Name)
	assert.Equal(t, "Mandal", upper[1].Name)

	all, ok := h.PrimeAndAbove(h.Bottom().UID)
	require.True(t, ok)
	assert.Len(t, all, 3)

	_, ok = h.PrimeAndAbove(uuid.New())
	assert.False(t, ok)
}
