package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecipientGroup scopes recipient identities.
type RecipientGroup string

const (
	RecipientGroupProviders    RecipientGroup = "providers"
	RecipientGroupCoordinators RecipientGroup = "coordinators"
)

// Valid reports whether the group is known. The empty group is not valid here.
func (g RecipientGroup) Valid() bool {
	return g == RecipientGroupProviders || g == RecipientGroupCoordinators
}

// RecipientKey derives the stable identity of a recipient. The format is shared with
// externally produced recipient lists and must not change:
//
//	user_<id>[_<group>] when userID > 0
//	email_<lowercased email>[_<group>] when the email is set
//	"" otherwise, which callers must reject
//
// The email is only lowercased; callers trim it at the input boundary.
func RecipientKey(userID int64, email string, group RecipientGroup) string {
	suffix := ""
	if group != "" {
		suffix = "_" + string(group)
	}
	if userID > 0 {
		return "user_" + strconv.FormatInt(userID, 10) + suffix
	}
	if email != "" {
		return "email_" + strings.ToLower(email) + suffix
	}
	return ""
}

// Recipient is one addressee of a scheduled event.
type Recipient struct {
	Key          string         `json:"key"`
	UserID       int64          `json:"userId,omitempty"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Group        RecipientGroup `json:"group"`
	DirectorKey  string         `json:"directorKey,omitempty"`
	DirectorName string         `json:"directorName,omitempty"`
	Course       string         `json:"course,omitempty"`
}

// Matches reports whether the recipient is the given identity. A match is by user
// id or by case-insensitive email; group, when set, must also match.
func (r Recipient) Matches(userID int64, email string, group RecipientGroup) bool {
	if group != "" && r.Group != group {
		return false
	}
	if userID > 0 && r.UserID == userID {
		return true
	}
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(strings.TrimSpace(r.Email), email)
}

// RecipientList is stored as a JSON array.
type RecipientList []Recipient

// Value implements driver.Valuer.
func (l RecipientList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	payload, err := json.Marshal([]Recipient(l))
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}
	return payload, nil
}

// Scan implements sql.Scanner.
func (l *RecipientList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported recipients source %T", src)
	}
	var out []Recipient
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal recipients: %w", err)
	}
	*l = out
	return nil
}

// EventDateLayout is the only accepted calendar day format.
const EventDateLayout = "2006-01-02"

// ScheduledEvent is an announcement pinned to a calendar day for a set of recipients.
type ScheduledEvent struct {
	ID         string        `db:"id" json:"id"`
	Date       string        `db:"event_date" json:"date"`
	Title      string        `db:"title" json:"title"`
	Message    *string       `db:"message" json:"message,omitempty"`
	Recipients RecipientList `db:"recipients" json:"recipients"`
	CreatedBy  int64         `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	UpdatedBy  *int64        `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt  *time.Time    `db:"updated_at" json:"updatedAt,omitempty"`
}

// ScheduledEventFilter narrows event listings to one identity.
type ScheduledEventFilter struct {
	UserID int64
	Email  string
	Group  RecipientGroup
}
