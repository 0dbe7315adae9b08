package models

import (
	"strings"
	"time"
)

// CoordinatorStatus is the moderation state of a directory entry.
type CoordinatorStatus string

const (
	CoordinatorStatusApproved CoordinatorStatus = "approved"
	CoordinatorStatusPending  CoordinatorStatus = "pending"
	CoordinatorStatusRejected CoordinatorStatus = "rejected"
)

// CoordinatorEntry is one course coordinator ("director") known to finance.
type CoordinatorEntry struct {
	ID        string            `db:"id" json:"id"`
	Course    string            `db:"course" json:"course"`
	Director  string            `db:"director" json:"director"`
	Email     string            `db:"email" json:"email"`
	UserID    *int64            `db:"user_id" json:"userId,omitempty"`
	Status    CoordinatorStatus `db:"status" json:"status"`
	CreatedBy int64             `db:"created_by" json:"createdBy"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
	UpdatedBy *int64            `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt *time.Time        `db:"updated_at" json:"updatedAt,omitempty"`
}

// Key returns the composite director+course key of the entry.
func (c CoordinatorEntry) Key() DirectorKey {
	return NewDirectorKey(c.Director, c.Course)
}

// UserIDValue returns the linked user id or zero.
func (c CoordinatorEntry) UserIDValue() int64 {
	if c.UserID == nil {
		return 0
	}
	return *c.UserID
}

// directorKeySeparator joins the two halves in the legacy string form.
const directorKeySeparator = "|"

// DirectorKey identifies a coordinator by director name and course. Both halves are
// trimmed and lowercased, so two keys are equal iff their legacy strings are equal.
type DirectorKey struct {
	Director string
	Course   string
}

// NewDirectorKey normalises the parts into a key.
func NewDirectorKey(director, course string) DirectorKey {
	return DirectorKey{
		Director: strings.ToLower(strings.TrimSpace(director)),
		Course:   strings.ToLower(strings.TrimSpace(course)),
	}
}

// ParseDirectorKey reads the legacy "director|course" form.
func ParseDirectorKey(raw string) (DirectorKey, bool) {
	director, course, ok := strings.Cut(raw, directorKeySeparator)
	if !ok {
		return DirectorKey{}, false
	}
	key := NewDirectorKey(director, course)
	if key.IsZero() {
		return DirectorKey{}, false
	}
	return key, true
}

// String renders the legacy string form.
func (k DirectorKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.Director + directorKeySeparator + k.Course
}

// IsZero reports whether the director half is missing.
func (k DirectorKey) IsZero() bool {
	return k.Director == ""
}

// LookupStatus tags the outcome of a directory lookup.
type LookupStatus string

const (
	LookupUnique    LookupStatus = "unique"
	LookupAmbiguous LookupStatus = "ambiguous"
	LookupNotFound  LookupStatus = "not_found"
)

// CoordinatorLookup is the tagged result of resolving a coordinator. Entry is set
// only when Status is LookupUnique; Candidates lists the colliding entries otherwise.
type CoordinatorLookup struct {
	Status     LookupStatus
	Entry      *CoordinatorEntry
	Candidates []CoordinatorEntry
}

// CoordinatorFilter narrows directory listings.
type CoordinatorFilter struct {
	Status []CoordinatorStatus
	Course string
}
