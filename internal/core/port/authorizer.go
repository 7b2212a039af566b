package port

import "context"

// Authorizer resolves actor capabilities, optionally scoped to a target user.
type Authorizer interface {
	// Can reports whether the actor holds the named capability, either
	// through role membership or a per-account grant.
	Can(ctx context.Context, actorID int64, capability string) (bool, error)

	// CanEditUser reports whether the actor may edit the target account.
	// Editing yourself is always permitted; editing anyone else requires
	// the edit_users capability.
	CanEditUser(ctx context.Context, actorID, targetID int64) (bool, error)
}
