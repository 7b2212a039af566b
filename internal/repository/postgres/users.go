package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/port"
	"github.com/wrdsb/user-directory-api/internal/infra/security"
	"github.com/wrdsb/user-directory-api/internal/repository"
)

const userColumns = "id, login, display_name, first_name, last_name, email, url, description, nickname, slug, registered_at"

// UserDirectory implements port.UserDirectory using PostgreSQL.
type UserDirectory struct {
	db      Querier
	builder squirrel.StatementBuilderType
}

// NewUserDirectory wires a PostgreSQL-backed user directory.
func NewUserDirectory(db Querier) *UserDirectory {
	return &UserDirectory{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a directory instance operating within the supplied transaction.
func (r *UserDirectory) WithTx(tx pgx.Tx) *UserDirectory {
	if tx == nil {
		return r
	}
	return &UserDirectory{
		db:      tx,
		builder: r.builder,
	}
}

func userSelectColumns() []string {
	return strings.Split(userColumns, ", ")
}

// FindByMeta returns every user carrying the metadata pair, ordered by
// ascending user id.
func (r *UserDirectory) FindByMeta(ctx context.Context, key, value string) ([]domain.User, error) {
	stmt, args, err := r.builder.
		Select(prefixColumns("u", userSelectColumns())...).
		From("directory.users u").
		Join("directory.user_meta m ON m.user_id = u.id").
		Where(squirrel.Eq{"m.meta_key": key, "m.meta_value": value}).
		OrderBy("u.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find users by meta sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users by meta: %w", err)
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}

	for i := range users {
		if err := r.hydrate(ctx, &users[i]); err != nil {
			return nil, err
		}
	}

	return users, nil
}

// GetByID retrieves a user by identifier.
func (r *UserDirectory) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves the user owning the email address.
func (r *UserDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetBySlug retrieves the user owning the slug.
func (r *UserDirectory) GetBySlug(ctx context.Context, slug string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"slug": slug})
}

func (r *UserDirectory) getBy(ctx context.Context, pred squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userSelectColumns()...).
		From("directory.users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if err := r.hydrate(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// GetMeta returns the metadata map for the user.
func (r *UserDirectory) GetMeta(ctx context.Context, userID int64) (map[string]string, error) {
	stmt, args, err := r.builder.
		Select("meta_key", "meta_value").
		From("directory.user_meta").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user meta sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan user meta: %w", err)
		}
		meta[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user meta: %w", err)
	}

	return meta, nil
}

// Update applies the non-nil fields of the update to the identified user.
func (r *UserDirectory) Update(ctx context.Context, update domain.UserUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	query := r.builder.Update("directory.users")

	if update.Email != nil {
		query = query.Set("email", *update.Email)
	}
	if update.DisplayName != nil {
		query = query.Set("display_name", *update.DisplayName)
	}
	if update.FirstName != nil {
		query = query.Set("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		query = query.Set("last_name", *update.LastName)
	}
	if update.Nickname != nil {
		query = query.Set("nickname", *update.Nickname)
	}
	if update.Slug != nil {
		query = query.Set("slug", *update.Slug)
	}
	if update.Description != nil {
		query = query.Set("description", *update.Description)
	}
	if update.URL != nil {
		query = query.Set("url", *update.URL)
	}
	if update.Password != nil {
		hash, err := security.HashPassword(*update.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		query = query.Set("password_hash", hash)
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": update.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AddRoles assigns the named roles to the user, leaving existing assignments
// in place.
func (r *UserDirectory) AddRoles(ctx context.Context, userID int64, roles []string) error {
	if len(roles) == 0 {
		return nil
	}

	assignedAt := time.Now().UTC()
	query := r.builder.Insert("directory.user_roles").
		Columns("user_id", "role", "assigned_at")

	for _, role := range roles {
		query = query.Values(userID, role, assignedAt)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build add roles sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("add roles: %w", err)
	}

	return nil
}

// UpdateMeta upserts the provided metadata keys for the user.
func (r *UserDirectory) UpdateMeta(ctx context.Context, userID int64, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}

	for key, value := range meta {
		stmt, args, err := r.builder.Insert("directory.user_meta").
			Columns("user_id", "meta_key", "meta_value").
			Values(userID, key, value).
			Suffix("ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value").
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert user meta sql: %w", err)
		}

		if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("upsert user meta: %w", err)
		}
	}

	return nil
}

// hydrate loads role assignments, the derived capability set, per-account
// capability overrides, and metadata for the user.
func (r *UserDirectory) hydrate(ctx context.Context, user *domain.User) error {
	roles, roleCaps, err := r.loadRoles(ctx, user.ID)
	if err != nil {
		return err
	}

	extra, err := r.loadExtraCapabilities(ctx, user.ID)
	if err != nil {
		return err
	}

	meta, err := r.GetMeta(ctx, user.ID)
	if err != nil {
		return err
	}

	caps := make(map[string]bool, len(roleCaps)+len(extra))
	for name, granted := range roleCaps {
		caps[name] = granted
	}
	for name, granted := range extra {
		caps[name] = granted
	}

	user.Roles = roles
	user.Capabilities = caps
	user.ExtraCapabilities = extra
	user.Meta = meta

	return nil
}

func (r *UserDirectory) loadRoles(ctx context.Context, userID int64) ([]string, map[string]bool, error) {
	stmt, args, err := r.builder.
		Select("ur.role", "ro.capabilities").
		From("directory.user_roles ur").
		Join("directory.roles ro ON ro.name = ur.role").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("ur.assigned_at ASC").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build select user roles sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	caps := make(map[string]bool)
	for rows.Next() {
		var (
			role    string
			rawCaps []byte
		)
		if err := rows.Scan(&role, &rawCaps); err != nil {
			return nil, nil, fmt.Errorf("scan user role: %w", err)
		}

		roleCaps := make(map[string]bool)
		if len(rawCaps) > 0 {
			if err := json.Unmarshal(rawCaps, &roleCaps); err != nil {
				return nil, nil, fmt.Errorf("decode role capabilities: %w", err)
			}
		}

		roles = append(roles, role)
		for name, granted := range roleCaps {
			if granted {
				caps[name] = true
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return roles, caps, nil
}

func (r *UserDirectory) loadExtraCapabilities(ctx context.Context, userID int64) (map[string]bool, error) {
	stmt, args, err := r.builder.
		Select("capability", "granted").
		From("directory.user_capabilities").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user capabilities sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user capabilities: %w", err)
	}
	defer rows.Close()

	extra := make(map[string]bool)
	for rows.Next() {
		var (
			capability string
			granted    bool
		)
		if err := rows.Scan(&capability, &granted); err != nil {
			return nil, fmt.Errorf("scan user capability: %w", err)
		}
		extra[capability] = granted
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user capabilities: %w", err)
	}

	return extra, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		firstName   sql.NullString
		lastName    sql.NullString
		url         sql.NullString
		description sql.NullString
		nickname    sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Login,
		&user.DisplayName,
		&firstName,
		&lastName,
		&user.Email,
		&url,
		&description,
		&nickname,
		&user.Slug,
		&user.RegisteredAt,
	); err != nil {
		return nil, err
	}

	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.URL = url.String
	user.Description = description.String
	user.Nickname = nickname.String

	return &user, nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func prefixColumns(alias string, columns []string) []string {
	prefixed := make([]string, len(columns))
	for i, column := range columns {
		prefixed[i] = alias + "." + column
	}
	return prefixed
}

var _ port.UserDirectory = (*UserDirectory)(nil)
