package port

import (
	"context"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
)

// UserDirectory exposes persistence behavior for directory accounts.
type UserDirectory interface {
	// FindByMeta returns every user whose metadata field key equals value,
	// ordered by ascending user id.
	FindByMeta(ctx context.Context, key, value string) ([]domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetBySlug(ctx context.Context, slug string) (*domain.User, error)

	// GetMeta returns the metadata map for the user.
	GetMeta(ctx context.Context, userID int64) (map[string]string, error)

	// Update applies the non-nil fields of the update to the identified user.
	Update(ctx context.Context, update domain.UserUpdate) error

	// AddRoles assigns the named roles to the user, leaving existing
	// assignments in place.
	AddRoles(ctx context.Context, userID int64, roles []string) error

	// UpdateMeta upserts the provided metadata keys for the user.
	UpdateMeta(ctx context.Context, userID int64, meta map[string]string) error
}
