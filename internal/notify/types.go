// Package notify turns workflow transition events into notifications,
// tracks their read state, and pushes them over a pub/sub channel.
package notify

import (
	"errors"
	"time"

	"permitdesk.org/internal/identity"
)

// Priority orders notifications in client inboxes.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification targets exactly one of a unit or a user. Only IsRead is
// ever mutated, and only from false to true.
type Notification struct {
	ID             string             `json:"id"`
	TargetUnit     identity.StaffUnit `json:"target_unit,omitempty"`
	TargetUserID   string             `json:"target_user_id,omitempty"`
	Type           string             `json:"type"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Priority       Priority           `json:"priority"`
	ActionRequired bool               `json:"action_required"`
	ApplicationID  string             `json:"application_id"`
	IsRead         bool               `json:"is_read"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Scope addresses a notification inbox: either one unit's shared queue
// or one user's personal queue.
type Scope struct {
	Unit   identity.StaffUnit `json:"unit,omitempty"`
	UserID string             `json:"user_id,omitempty"`
}

// Valid reports whether exactly one dimension is set.
func (s Scope) Valid() bool {
	return (s.Unit != "") != (s.UserID != "")
}

// UnitScope addresses a unit-wide inbox.
func UnitScope(unit identity.StaffUnit) Scope { return Scope{Unit: unit} }

// UserScope addresses a personal inbox.
func UserScope(userID string) Scope { return Scope{UserID: userID} }

// ScopeOf returns the inbox a notification belongs to.
func ScopeOf(n Notification) Scope {
	if n.TargetUnit != "" {
		return UnitScope(n.TargetUnit)
	}
	return UserScope(n.TargetUserID)
}

var (
	ErrNotFound     = errors.New("notify: notification not found")
	ErrForbidden    = errors.New("notify: actor may not touch this notification")
	ErrInvalidScope = errors.New("notify: scope must name exactly one of unit or user")
)
