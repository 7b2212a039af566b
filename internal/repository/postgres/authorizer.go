package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/wrdsb/user-directory-api/internal/core/port"
)

// Authorizer implements port.Authorizer against the directory tables. A
// capability is held when any assigned role grants it or a per-account
// override grants it; a per-account deny override wins over role grants.
type Authorizer struct {
	db      Querier
	builder squirrel.StatementBuilderType
}

// NewAuthorizer wires a PostgreSQL-backed authorizer.
func NewAuthorizer(db Querier) *Authorizer {
	return &Authorizer{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Can reports whether the actor holds the named capability.
func (r *Authorizer) Can(ctx context.Context, actorID int64, capability string) (bool, error) {
	if actorID == 0 {
		return false, nil
	}

	stmt, args, err := r.builder.
		Select("granted").
		From("directory.user_capabilities").
		Where(squirrel.Eq{"user_id": actorID, "capability": capability}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select capability override sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("query capability override: %w", err)
	}

	overridden := false
	granted := false
	for rows.Next() {
		if err := rows.Scan(&granted); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan capability override: %w", err)
		}
		overridden = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate capability override: %w", err)
	}

	if overridden {
		return granted, nil
	}

	return r.roleGrants(ctx, actorID, capability)
}

// CanEditUser reports whether the actor may edit the target account. Editing
// yourself is always permitted.
func (r *Authorizer) CanEditUser(ctx context.Context, actorID, targetID int64) (bool, error) {
	if actorID == 0 {
		return false, nil
	}
	if actorID == targetID {
		return true, nil
	}
	return r.Can(ctx, actorID, "edit_users")
}

func (r *Authorizer) roleGrants(ctx context.Context, actorID int64, capability string) (bool, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("directory.user_roles ur").
		Join("directory.roles ro ON ro.name = ur.role").
		Where(squirrel.Eq{"ur.user_id": actorID}).
		Where("(ro.capabilities ->> ?)::boolean = TRUE", capability).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select role grant sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	var count int64
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scan role grant count: %w", err)
	}

	return count > 0, nil
}

var _ port.Authorizer = (*Authorizer)(nil)
