package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// State is a survey's lifecycle phase. Uploads are allowed in Draft and
// Active; Closed surveys are read-only.
type State string

const (
	StateDraft  State = "draft"
	StateActive State = "active"
	StateClosed State = "closed"
)

func ParseState(s string) (State, error) {
	switch State(s) {
	case StateDraft, StateActive, StateClosed:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown survey state %q", s)
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Survey is the root aggregate everything else hangs off: geo levels,
// locations, forms, targets and enumerators all reference a survey.
type Survey struct {
	UID  uuid.UUID `json:"survey_uid"`
	Key  string    `json:"survey_key"`
	Name string    `json:"survey_name"`
	State State    `json:"state"`

	// PrimeGeoLevelUID is the hierarchy level enumerators are assigned at.
	// Targets always pin to the hierarchy's bottom level instead.
	PrimeGeoLevelUID *uuid.UUID `json:"prime_geo_level_uid,omitempty"`
}

// Validate checks the survey's own fields. Cross-aggregate rules, like the
// prime geo level belonging to the survey's hierarchy, live in the service.
func (s Survey) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "survey name must not be blank")
	}
	if !keyPattern.MatchString(s.Key) {
		problems = append(problems, fmt.Sprintf("survey key %q must be lowercase alphanumeric with - or _", s.Key))
	}
	if _, err := ParseState(string(s.State)); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid survey: %s", strings.Join(problems, "; "))
	}
	return nil
}
