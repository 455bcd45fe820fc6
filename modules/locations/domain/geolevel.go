package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// GeoLevel is one rung of a survey's strictly linear administrative
// hierarchy, e.g. District or Village. Exactly one level per survey has a nil
// parent; every other level has exactly one child.
type GeoLevel struct {
	UID       uuid.UUID  `json:"geo_level_uid"`
	SurveyUID uuid.UUID  `json:"survey_uid"`
	Name      string     `json:"geo_level_name"`
	ParentUID *uuid.UUID `json:"parent_geo_level_uid,omitempty"`
}

// HierarchyError carries every structural defect found in a survey's geo
// level set. The problem list is surfaced verbatim to the end user.
type HierarchyError struct {
	Problems []string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("geo level hierarchy is invalid: %s", strings.Join(e.Problems, "; "))
}

// GeoLevelHierarchy is a validated, linearized geo level chain.
type GeoLevelHierarchy struct {
	// Ordered runs from the root level to the leaf.
	Ordered []GeoLevel

	byUID map[uuid.UUID]GeoLevel
}

// NewGeoLevelHierarchy validates an unordered geo level collection and
// linearizes it into a root-to-leaf chain. Duplicate identifiers or names
// abort before the tree checks, since walking a set with duplicated keys
// produces nonsense diagnostics; all other structural problems are collected
// and reported together.
func NewGeoLevelHierarchy(levels []GeoLevel) (*GeoLevelHierarchy, error) {
	if len(levels) == 0 {
		return nil, &HierarchyError{Problems: []string{"no geo levels are defined for this survey"}}
	}

	var problems []string

	uidCount := make(map[uuid.UUID]int, len(levels))
	nameCount := make(map[string]int, len(levels))
	for _, l := range levels {
		uidCount[l.UID]++
		nameCount[l.Name]++
	}
	for _, l := range levels {
		if n := uidCount[l.UID]; n > 1 {
			problems = append(problems, fmt.Sprintf("geo level uid %s appears %d times", l.UID, n))
			uidCount[l.UID] = 0
		}
	}
	for _, l := range levels {
		if n := nameCount[l.Name]; n > 1 {
			problems = append(problems, fmt.Sprintf("geo level name %q appears %d times", l.Name, n))
			nameCount[l.Name] = 0
		}
	}
	if len(problems) > 0 {
		return nil, &HierarchyError{Problems: problems}
	}

	byUID := make(map[uuid.UUID]GeoLevel, len(levels))
	for _, l := range levels {
		byUID[l.UID] = l
	}

	var roots []GeoLevel
	children := make(map[uuid.UUID][]GeoLevel)
	for _, l := range levels {
		if l.ParentUID == nil {
			roots = append(roots, l)
			continue
		}
		children[*l.ParentUID] = append(children[*l.ParentUID], l)
	}

	switch {
	case len(roots) == 0:
		problems = append(problems, "no root geo level found: every level references a parent")
	case len(roots) > 1:
		problems = append(problems, fmt.Sprintf(
			"multiple root geo levels found: %s; exactly one level must have no parent",
			levelNames(roots),
		))
	}

	visited := make(map[uuid.UUID]bool, len(levels))
	var ordered []GeoLevel
	if len(roots) == 1 {
		current := roots[0]
		visited[current.UID] = true
		ordered = append(ordered, current)

		for {
			kids := children[current.UID]
			if len(kids) > 1 {
				problems = append(problems, fmt.Sprintf(
					"geo level %q has multiple child levels: %s; each level must have at most one child",
					current.Name, levelNames(kids),
				))
				break
			}
			if len(kids) == 0 {
				break
			}
			next := kids[0]
			if visited[next.UID] {
				problems = append(problems, fmt.Sprintf("cycle detected in geo level hierarchy at level %q", next.Name))
				break
			}
			visited[next.UID] = true
			ordered = append(ordered, next)
			current = next
		}
	}

	for _, l := range levels {
		if visited[l.UID] {
			continue
		}
		switch {
		case l.ParentUID != nil && *l.ParentUID == l.UID:
			problems = append(problems, fmt.Sprintf("geo level %q references itself as its parent", l.Name))
		case l.ParentUID != nil && !inSet(byUID, *l.ParentUID):
			problems = append(problems, fmt.Sprintf("geo level %q references a parent that does not exist", l.Name))
		case len(roots) == 1:
			problems = append(problems, fmt.Sprintf("geo level %q is not reachable from the root level", l.Name))
		}
	}

	if len(problems) > 0 {
		return nil, &HierarchyError{Problems: problems}
	}

	return &GeoLevelHierarchy{Ordered: ordered, byUID: byUID}, nil
}

// Bottom returns the most granular level of the chain.
func (h *GeoLevelHierarchy) Bottom() GeoLevel {
	return h.Ordered[len(h.Ordered)-1]
}

func (h *GeoLevelHierarchy) Root() GeoLevel {
	return h.Ordered[0]
}

// Level returns the hierarchy member with the given uid.
func (h *GeoLevelHierarchy) Level(uid uuid.UUID) (GeoLevel, bool) {
	l, ok := h.byUID[uid]
	return l, ok
}

// LevelAbove returns the parent level of the given one, positional per the
// validated chain. The second return is false at the root or for unknown uids.
func (h *GeoLevelHierarchy) LevelAbove(uid uuid.UUID) (GeoLevel, bool) {
	for i, l := range h.Ordered {
		if l.UID == uid {
			if i == 0 {
				return GeoLevel{}, false
			}
			return h.Ordered[i-1], true
		}
	}
	return GeoLevel{}, false
}

// PrimeAndAbove returns the chain from the root down to and including the
// given level. The second return is false for uids outside the hierarchy.
func (h *GeoLevelHierarchy) PrimeAndAbove(uid uuid.UUID) ([]GeoLevel, bool) {
	for i, l := range h.Ordered {
		if l.UID == uid {
			return h.Ordered[:i+1], true
		}
	}
	return nil, false
}

func (h *GeoLevelHierarchy) Contains(uid uuid.UUID) bool {
	return inSet(h.byUID, uid)
}

func inSet(m map[uuid.UUID]GeoLevel, uid uuid.UUID) bool {
	_, ok := m[uid]
	return ok
}

func levelNames(levels []GeoLevel) string {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.Name
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
