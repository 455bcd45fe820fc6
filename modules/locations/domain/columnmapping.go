package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// GeoLevelMapping declares which uploaded columns hold one geo level's
// business key and display name.
type GeoLevelMapping struct {
	GeoLevelUID uuid.UUID `json:"geo_level_uid"`
	IDColumn    string    `json:"location_id_column"`
	NameColumn  string    `json:"location_name_column"`
}

// MappingError carries every defect found in a caller-supplied column
// mapping. No partial mapping is ever accepted.
type MappingError struct {
	Problems []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("column mapping is invalid: %s", strings.Join(e.Problems, "; "))
}

// LocationColumnMapping is a validated mapping from every geo level of a
// survey's hierarchy to its pair of spreadsheet columns.
type LocationColumnMapping struct {
	hierarchy *GeoLevelHierarchy
	byLevel   map[uuid.UUID]GeoLevelMapping
}

// NewLocationColumnMapping validates the mapping against the hierarchy:
// every level mapped exactly once, no stale level references, and no column
// name used twice anywhere in the mapping.
func NewLocationColumnMapping(h *GeoLevelHierarchy, entries []GeoLevelMapping) (*LocationColumnMapping, error) {
	var problems []string

	byLevel := make(map[uuid.UUID]GeoLevelMapping, len(entries))
	for _, e := range entries {
		level, known := h.Level(e.GeoLevelUID)
		if !known {
			problems = append(problems, fmt.Sprintf(
				"column mapping references geo level %s which does not belong to this survey", e.GeoLevelUID,
			))
			continue
		}
		if _, dup := byLevel[e.GeoLevelUID]; dup {
			problems = append(problems, fmt.Sprintf("geo level %q is mapped more than once", level.Name))
			continue
		}
		if strings.TrimSpace(e.IDColumn) == "" || strings.TrimSpace(e.NameColumn) == "" {
			problems = append(problems, fmt.Sprintf(
				"geo level %q must declare both a location id column and a location name column", level.Name,
			))
			continue
		}
		byLevel[e.GeoLevelUID] = e
	}

	for _, level := range h.Ordered {
		if _, ok := byLevel[level.UID]; !ok {
			problems = append(problems, fmt.Sprintf("no column mapping provided for geo level %q", level.Name))
		}
	}

	usage := make(map[string][]string)
	for _, level := range h.Ordered {
		e, ok := byLevel[level.UID]
		if !ok {
			continue
		}
		usage[e.IDColumn] = append(usage[e.IDColumn], fmt.Sprintf("%s location id", level.Name))
		usage[e.NameColumn] = append(usage[e.NameColumn], fmt.Sprintf("%s location name", level.Name))
	}
	problems = append(problems, columnCollisions(usage)...)

	if len(problems) > 0 {
		return nil, &MappingError{Problems: problems}
	}

	return &LocationColumnMapping{hierarchy: h, byLevel: byLevel}, nil
}

// ForLevel returns the column pair mapped to the given geo level.
func (m *LocationColumnMapping) ForLevel(uid uuid.UUID) (GeoLevelMapping, bool) {
	e, ok := m.byLevel[uid]
	return e, ok
}

// Columns lists every mapped column in hierarchy order, id before name per
// level. This is exactly the column set an uploaded file must carry.
func (m *LocationColumnMapping) Columns() []string {
	out := make([]string, 0, 2*len(m.hierarchy.Ordered))
	for _, level := range m.hierarchy.Ordered {
		e := m.byLevel[level.UID]
		out = append(out, e.IDColumn, e.NameColumn)
	}
	return out
}

// Entries returns the mapping rows in hierarchy order, for persistence.
func (m *LocationColumnMapping) Entries() []GeoLevelMapping {
	out := make([]GeoLevelMapping, 0, len(m.hierarchy.Ordered))
	for _, level := range m.hierarchy.Ordered {
		out = append(out, m.byLevel[level.UID])
	}
	return out
}

func columnCollisions(usage map[string][]string) []string {
	var cols []string
	for col, fields := range usage {
		if len(fields) > 1 {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)

	var problems []string
	for _, col := range cols {
		fields := usage[col]
		sort.Strings(fields)
		problems = append(problems, fmt.Sprintf(
			"column %q is mapped to multiple fields: %s", col, strings.Join(fields, ", "),
		))
	}
	return problems
}
