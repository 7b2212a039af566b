package domain

import "time"

// UserUpdatedEvent represents the payload for directory.user.updated messages.
type UserUpdatedEvent struct {
	EventID       string
	UserID        int64
	IDNumber      string
	UpdatedBy     int64
	UpdatedAt     time.Time
	ChangedFields []string
	Metadata      map[string]any
}

// RolesAssignedEvent represents the payload for directory.user.roles.assigned messages.
type RolesAssignedEvent struct {
	EventID    string
	UserID     int64
	RolesAdded []string
	AssignedBy int64
	AssignedAt time.Time
	Metadata   map[string]any
}
