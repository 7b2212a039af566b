package domain

import "time"

// User mirrors the persisted representation of a directory account.
// Login never changes after the account is created; Slug and Email are
// unique across the directory.
type User struct {
	ID           int64
	Login        string
	DisplayName  string
	FirstName    string
	LastName     string
	Email        string
	URL          string
	Description  string
	Nickname     string
	Slug         string
	RegisteredAt time.Time

	// Roles holds the names of the roles assigned to the account.
	Roles []string

	// Capabilities is the derived capability set: the union of every
	// assigned role's grants plus ExtraCapabilities.
	Capabilities map[string]bool

	// ExtraCapabilities holds per-account capability overrides granted
	// outside of role membership.
	ExtraCapabilities map[string]bool

	// Meta carries arbitrary key/value metadata, including the alternate
	// lookup identifier.
	Meta map[string]string
}

// Can reports whether the user holds the named capability.
func (u *User) Can(capability string) bool {
	if u == nil {
		return false
	}
	return u.Capabilities[capability]
}

// UserUpdate carries a partial update for a single account. Nil pointer
// fields are left untouched. ID identifies the target and is never taken
// from client input.
type UserUpdate struct {
	ID          int64
	Email       *string
	DisplayName *string
	FirstName   *string
	LastName    *string
	Nickname    *string
	Slug        *string
	Description *string
	URL         *string
	Password    *string
}

// IsEmpty reports whether the update carries no field changes.
func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil &&
		u.DisplayName == nil &&
		u.FirstName == nil &&
		u.LastName == nil &&
		u.Nickname == nil &&
		u.Slug == nil &&
		u.Description == nil &&
		u.URL == nil &&
		u.Password == nil
}
