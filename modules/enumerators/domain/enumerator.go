package domain

import (
	"github.com/google/uuid"
)

// Enumerator is one field staff member on a survey's roster. EnumeratorID is
// the user-facing business key. LocationUID, when set, references a location
// at the survey's configured prime geo level. Enumerators are assigned at a
// supervisory level, unlike targets, which always pin to the hierarchy's
// bottom.
type Enumerator struct {
	UID          uuid.UUID `json:"enumerator_uid"`
	SurveyUID    uuid.UUID `json:"survey_uid"`
	EnumeratorID string    `json:"enumerator_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`

	LocationUID *uuid.UUID `json:"location_uid,omitempty"`
}

// Roster uploads use a fixed column set; enumerator rosters are small and
// uniform enough that a per-survey column mapping buys nothing.
const (
	ColumnEnumeratorID = "enumerator_id"
	ColumnName         = "name"
	ColumnEmail        = "email"
	ColumnPhone        = "phone"
	ColumnLocationID   = "location_id"
)

// UploadColumns is the exact header an enumerator roster file must carry.
func UploadColumns() []string {
	return []string{ColumnEnumeratorID, ColumnName, ColumnEmail, ColumnPhone, ColumnLocationID}
}

// RequiredColumns must not contain blank values.
func RequiredColumns() []string {
	return []string{ColumnEnumeratorID, ColumnName, ColumnLocationID}
}
