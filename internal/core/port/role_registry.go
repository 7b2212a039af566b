package port

import (
	"context"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
)

// RoleRegistry resolves role definitions and the set of roles an actor may
// hand out.
type RoleRegistry interface {
	// Get returns the role definition for the given name, or
	// repository.ErrNotFound when the role does not exist.
	Get(ctx context.Context, name string) (*domain.Role, error)

	// EditableBy returns the names of the roles the actor is permitted to
	// grant to other accounts.
	EditableBy(ctx context.Context, actorID int64) (map[string]struct{}, error)
}
