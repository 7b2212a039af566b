package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/port"
	"github.com/wrdsb/user-directory-api/internal/repository"
)

// RoleRegistry implements port.RoleRegistry using PostgreSQL.
type RoleRegistry struct {
	db         Querier
	builder    squirrel.StatementBuilderType
	authorizer port.Authorizer
}

// NewRoleRegistry wires a PostgreSQL-backed role registry. The authorizer
// decides whether network-only roles are visible to a given actor.
func NewRoleRegistry(db Querier, authorizer port.Authorizer) *RoleRegistry {
	return &RoleRegistry{
		db:         db,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		authorizer: authorizer,
	}
}

// Get returns the role definition for the given name.
func (r *RoleRegistry) Get(ctx context.Context, name string) (*domain.Role, error) {
	stmt, args, err := r.builder.
		Select("name", "display_name", "capabilities", "network_only").
		From("directory.roles").
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	var (
		role    domain.Role
		rawCaps []byte
	)

	if err := row.Scan(&role.Name, &role.DisplayName, &rawCaps, &role.NetworkOnly); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	role.Capabilities = make(map[string]bool)
	if len(rawCaps) > 0 {
		if err := json.Unmarshal(rawCaps, &role.Capabilities); err != nil {
			return nil, fmt.Errorf("decode role capabilities: %w", err)
		}
	}

	return &role, nil
}

// EditableBy returns the names of the roles the actor may grant to other
// accounts. Network-only roles are included only for actors holding the
// manage_sites capability.
func (r *RoleRegistry) EditableBy(ctx context.Context, actorID int64) (map[string]struct{}, error) {
	query := r.builder.
		Select("name").
		From("directory.roles")

	superAdmin, err := r.authorizer.Can(ctx, actorID, "manage_sites")
	if err != nil {
		return nil, fmt.Errorf("check manage_sites: %w", err)
	}
	if !superAdmin {
		query = query.Where(squirrel.Eq{"network_only": false})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select editable roles sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query editable roles: %w", err)
	}
	defer rows.Close()

	editable := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan editable role: %w", err)
		}
		editable[name] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editable roles: %w", err)
	}

	return editable, nil
}

var _ port.RoleRegistry = (*RoleRegistry)(nil)
