package domain

import (
	"github.com/google/uuid"
)

// Target is one respondent to be surveyed under a form. TargetID is the
// user-facing business key; LocationUID, when set, references a location at
// the hierarchy's bottom level. Targets are always pinned to the most
// granular level, unlike enumerators, which are assigned at the survey's
// prime level.
type Target struct {
	UID      uuid.UUID `json:"target_uid"`
	FormUID  uuid.UUID `json:"form_uid"`
	TargetID string    `json:"target_id"`
	Language string    `json:"language,omitempty"`
	Gender   string    `json:"gender,omitempty"`

	LocationUID *uuid.UUID `json:"location_uid,omitempty"`

	// CustomFields carries the survey-specific columns declared in the
	// target column mapping, keyed by field label. Stored as JSONB.
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}
