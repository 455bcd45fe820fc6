package domain

import (
	"github.com/google/uuid"
)

// Location is one concrete place at a given geo level. LocationID is the
// user-facing stable business key, distinct from the internal UID; it maps
// to exactly one display name and exactly one parent within a survey.
type Location struct {
	UID         uuid.UUID  `json:"location_uid"`
	SurveyUID   uuid.UUID  `json:"survey_uid"`
	GeoLevelUID uuid.UUID  `json:"geo_level_uid"`
	LocationID  string     `json:"location_id"`
	Name        string     `json:"location_name"`
	ParentUID   *uuid.UUID `json:"parent_location_uid,omitempty"`
}

// IDName is one level's slot in a wide hierarchy row.
type IDName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WideRow is one leaf location joined with all of its ancestors, keyed by
// geo level uid. This is the normalized shape uploads are reconciled
// against and exports are rendered from.
type WideRow map[uuid.UUID]IDName

// BuildWideRows re-joins persisted locations into one row per bottom-level
// location by following parent links up the validated hierarchy. Locations
// with broken parent chains contribute blank slots for the missing levels.
func BuildWideRows(h *GeoLevelHierarchy, locations []Location) []WideRow {
	byUID := make(map[uuid.UUID]Location, len(locations))
	for _, l := range locations {
		byUID[l.UID] = l
	}

	bottom := h.Bottom()
	var rows []WideRow
	for _, l := range locations {
		if l.GeoLevelUID != bottom.UID {
			continue
		}
		row := make(WideRow, len(h.Ordered))
		current := l
		for {
			row[current.GeoLevelUID] = IDName{ID: current.LocationID, Name: current.Name}
			if current.ParentUID == nil {
				break
			}
			parent, ok := byUID[*current.ParentUID]
			if !ok {
				break
			}
			current = parent
		}
		rows = append(rows, row)
	}
	return rows
}
