package domain

// Role defines a named bundle of capabilities drawn from the role registry.
type Role struct {
	Name        string
	DisplayName string

	// Capabilities maps capability name to grant/deny.
	Capabilities map[string]bool

	// NetworkOnly marks roles that only network super administrators may
	// hand out.
	NetworkOnly bool
}

// HasCapability reports whether the role grants the named capability.
func (r *Role) HasCapability(capability string) bool {
	if r == nil {
		return false
	}
	return r.Capabilities[capability]
}
