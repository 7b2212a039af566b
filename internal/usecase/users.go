package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/port"
	"github.com/wrdsb/user-directory-api/internal/core/schema"
	"github.com/wrdsb/user-directory-api/internal/repository"
)

// Capabilities consulted by the user lookup endpoints.
const (
	CapabilityListUsers   = "list_users"
	CapabilityEditUsers   = "edit_users"
	CapabilityManageSites = "manage_sites"
)

// DefaultMetaKey is the metadata field holding the alternate identifier.
const DefaultMetaKey = "wrdsb_id_number"

// UpdateInput captures the decoded update payload. Nil pointers mark absent
// keys; unknown and read-only keys never reach this struct.
type UpdateInput struct {
	Username    *string
	Email       *string
	Name        *string
	FirstName   *string
	LastName    *string
	Nickname    *string
	Slug        *string
	Description *string
	URL         *string
	Password    *string
	Roles       []string
	Meta        map[string]string
}

// ResponseHook post-processes the assembled response fields before context
// filtering. The default is the identity function.
type ResponseHook func(data map[string]any, user *domain.User) map[string]any

// UpdateHook runs after the directory write for additional field handling.
type UpdateHook func(ctx context.Context, user *domain.User, input UpdateInput) error

// Options configures namespace, link derivation, and host settings for the
// user service.
type Options struct {
	// Namespace is the route namespace, e.g. "wrdsb/v2".
	Namespace string
	// RestBase is the resource segment, e.g. "user-by-id-number".
	RestBase string
	// RestURL is the absolute base for API links, e.g. "https://example.org/api".
	RestURL string
	// SiteURL is the absolute base for author links.
	SiteURL string
	// MetaKey is the metadata field queried during lookup.
	MetaKey string
	// Multisite enables the network super-administrator escape hatch in role
	// assignment checks.
	Multisite bool
	// Schema carries host settings that shape the field schema.
	Schema schema.Options
}

// UserService resolves users by alternate identifier, enforces the endpoint
// permission model, and maps between wire and internal representations.
type UserService struct {
	directory  port.UserDirectory
	authorizer port.Authorizer
	roles      port.RoleRegistry
	content    port.ContentRepository
	events     port.EventPublisher
	cache      port.LookupCache
	opts       Options
	logger     *zap.Logger

	responseHook ResponseHook
	updateHook   UpdateHook
}

// NewUserService constructs a UserService.
func NewUserService(
	directory port.UserDirectory,
	authorizer port.Authorizer,
	roles port.RoleRegistry,
	content port.ContentRepository,
	events port.EventPublisher,
	opts Options,
	logger *zap.Logger,
) *UserService {
	if opts.MetaKey == "" {
		opts.MetaKey = DefaultMetaKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserService{
		directory:    directory,
		authorizer:   authorizer,
		roles:        roles,
		content:      content,
		events:       events,
		opts:         opts,
		logger:       logger,
		responseHook: func(data map[string]any, _ *domain.User) map[string]any { return data },
	}
}

// WithLookupCache memoizes alternate-identifier resolutions.
func (s *UserService) WithLookupCache(cache port.LookupCache) *UserService {
	s.cache = cache
	return s
}

// WithResponseHook installs an extension hook for additional response fields.
func (s *UserService) WithResponseHook(hook ResponseHook) *UserService {
	if hook != nil {
		s.responseHook = hook
	}
	return s
}

// WithUpdateHook installs an extension hook for additional update handling.
func (s *UserService) WithUpdateHook(hook UpdateHook) *UserService {
	s.updateHook = hook
	return s
}

// Schema returns the published item schema document.
func (s *UserService) Schema() map[string]any {
	return schema.Document(s.opts.Schema)
}

// Resolve looks up the user carrying the alternate identifier. An empty
// identifier or zero matches yields rest_user_invalid_id. When the directory
// holds duplicate identifiers the match with the lowest user id wins.
func (s *UserService) Resolve(ctx context.Context, idNumber string) (*domain.User, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return nil, errInvalidID()
	}

	if s.cache != nil {
		if userID, ok, err := s.cache.GetUserID(ctx, idNumber); err != nil {
			s.logger.Warn("lookup cache read failed", zap.String("id_number", idNumber), zap.Error(err))
		} else if ok {
			user, err := s.directory.GetByID(ctx, userID)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("fetch cached user: %w", err)
			}
			// Stale cache entry; fall through to the directory query.
			if err := s.cache.Invalidate(ctx, idNumber); err != nil {
				s.logger.Warn("lookup cache invalidation failed", zap.String("id_number", idNumber), zap.Error(err))
			}
		}
	}

	matches, err := s.directory.FindByMeta(ctx, s.opts.MetaKey, idNumber)
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", s.opts.MetaKey, err)
	}
	if len(matches) == 0 {
		return nil, errInvalidID()
	}
	if len(matches) > 1 {
		s.logger.Warn("duplicate alternate identifier, using lowest user id",
			zap.String("id_number", idNumber),
			zap.Int("matches", len(matches)),
			zap.Int64("user_id", matches[0].ID),
		)
	}

	user := matches[0]
	if s.cache != nil {
		if err := s.cache.SetUserID(ctx, idNumber, user.ID); err != nil {
			s.logger.Warn("lookup cache write failed", zap.String("id_number", idNumber), zap.Error(err))
		}
	}

	return &user, nil
}

// GetItem resolves the user for idNumber, checks read access for the actor,
// and returns the serialized view for the requested context.
func (s *UserService) GetItem(ctx context.Context, actorID int64, idNumber string, viewContext schema.Context) (map[string]any, error) {
	user, err := s.Resolve(ctx, idNumber)
	if err != nil {
		return nil, err
	}

	if err := s.checkReadAccess(ctx, actorID, user, viewContext); err != nil {
		return nil, err
	}

	return s.prepareResponse(ctx, user, viewContext)
}

// checkReadAccess implements the read permission algorithm: self-view is
// always allowed; edit context requires list_users; otherwise the target must
// have published content or the actor needs edit access or list_users.
func (s *UserService) checkReadAccess(ctx context.Context, actorID int64, user *domain.User, viewContext schema.Context) error {
	if actorID == user.ID {
		return nil
	}

	canList, err := s.authorizer.Can(ctx, actorID, CapabilityListUsers)
	if err != nil {
		return fmt.Errorf("check %s: %w", CapabilityListUsers, err)
	}

	if viewContext == schema.ContextEdit && !canList {
		return errCannotViewEditContext(actorID)
	}

	if viewContext != schema.ContextEdit {
		published, err := s.content.CountPublishedByAuthor(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("count published content: %w", err)
		}

		if published == 0 {
			canEdit, err := s.authorizer.CanEditUser(ctx, actorID, user.ID)
			if err != nil {
				return fmt.Errorf("check edit access: %w", err)
			}
			if !canEdit && !canList {
				return errCannotView(actorID)
			}
		}
	}

	return nil
}

// UpdateItem resolves the user for idNumber, checks edit access, validates
// the payload, applies the update, and returns the refreshed edit-context
// view. Validation is fail-fast: nothing is written when any step fails.
func (s *UserService) UpdateItem(ctx context.Context, actorID int64, idNumber string, input UpdateInput) (map[string]any, error) {
	user, err := s.Resolve(ctx, idNumber)
	if err != nil {
		return nil, err
	}

	canEdit, err := s.authorizer.CanEditUser(ctx, actorID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check edit access: %w", err)
	}
	if !canEdit {
		return nil, errCannotEdit(actorID)
	}

	if len(input.Roles) > 0 {
		canEditRoles, err := s.authorizer.Can(ctx, actorID, CapabilityEditUsers)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", CapabilityEditUsers, err)
		}
		if !canEditRoles {
			return nil, errCannotEditRoles(actorID)
		}
	}

	if err := s.validateUpdate(ctx, actorID, user, input); err != nil {
		return nil, err
	}

	update := s.prepareUpdate(user.ID, input)
	if !update.IsEmpty() {
		// Directory failures surface verbatim; they carry the store's own
		// diagnostics.
		if err := s.directory.Update(ctx, update); err != nil {
			return nil, err
		}
	}

	refreshed, err := s.directory.GetByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("refetch user %d: %w", user.ID, err)
	}

	if len(input.Roles) > 0 {
		if err := s.directory.AddRoles(ctx, user.ID, input.Roles); err != nil {
			return nil, fmt.Errorf("add roles: %w", err)
		}
		s.publishRolesAssigned(ctx, actorID, user.ID, input.Roles)

		refreshed, err = s.directory.GetByID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("refetch user %d: %w", user.ID, err)
		}
	}

	if input.Meta != nil {
		if _, ok := schema.Lookup(s.opts.Schema, "meta"); ok {
			if err := s.directory.UpdateMeta(ctx, user.ID, input.Meta); err != nil {
				return nil, fmt.Errorf("update meta: %w", err)
			}
			s.invalidateLookup(ctx, idNumber, input.Meta)
		}
	}

	if s.updateHook != nil {
		if err := s.updateHook(ctx, refreshed, input); err != nil {
			return nil, err
		}
	}

	s.publishUserUpdated(ctx, actorID, refreshed.ID, idNumber, input)

	// Responses to updates always use the edit context.
	return s.prepareResponse(ctx, refreshed, schema.ContextEdit)
}

// validateUpdate runs the ordered pre-write checks, short-circuiting on the
// first failure.
func (s *UserService) validateUpdate(ctx context.Context, actorID int64, user *domain.User, input UpdateInput) error {
	if input.Email != nil && *input.Email != user.Email {
		_, err := s.directory.GetByEmail(ctx, *input.Email)
		switch {
		case err == nil:
			return errInvalidEmail()
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("check email collision: %w", err)
		}
	}

	if input.Username != nil && *input.Username != "" && *input.Username != user.Login {
		return errUsernameNotEditable()
	}

	if input.Slug != nil && *input.Slug != "" && *input.Slug != user.Slug {
		_, err := s.directory.GetBySlug(ctx, *input.Slug)
		switch {
		case err == nil:
			return errInvalidSlug()
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("check slug collision: %w", err)
		}
	}

	if len(input.Roles) > 0 {
		if err := s.checkRoleUpdate(ctx, actorID, user.ID, input.Roles); err != nil {
			return err
		}
	}

	return nil
}

// checkRoleUpdate validates every proposed role before any is applied: the
// role must exist, actors may not hand themselves a role without edit_users
// (network super administrators excepted), and the role must be in the
// actor's editable set.
func (s *UserService) checkRoleUpdate(ctx context.Context, actorID, targetID int64, roles []string) error {
	var editable map[string]struct{}

	for _, roleName := range roles {
		role, err := s.roles.Get(ctx, roleName)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errRoleMissing(roleName)
			}
			return fmt.Errorf("lookup role %q: %w", roleName, err)
		}

		if actorID == targetID && !role.HasCapability(CapabilityEditUsers) {
			superAdmin := false
			if s.opts.Multisite {
				superAdmin, err = s.authorizer.Can(ctx, actorID, CapabilityManageSites)
				if err != nil {
					return fmt.Errorf("check %s: %w", CapabilityManageSites, err)
				}
			}
			if !superAdmin {
				return errRoleNotGrantableSelf(actorID)
			}
		}

		if editable == nil {
			editable, err = s.roles.EditableBy(ctx, actorID)
			if err != nil {
				return fmt.Errorf("list editable roles: %w", err)
			}
		}
		if _, ok := editable[roleName]; !ok {
			return errRoleNotEditable()
		}
	}

	return nil
}

// updateAppliers is the static table mapping writable schema fields onto the
// internal update record. Fields absent from the table (username) or marked
// read-only in the schema never reach the directory write.
var updateAppliers = []struct {
	field string
	apply func(*domain.UserUpdate, UpdateInput, func(string) string)
}{
	{"email", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.Email = sanitized(in.Email, clean)
	}},
	{"name", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.DisplayName = sanitized(in.Name, clean)
	}},
	{"first_name", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.FirstName = sanitized(in.FirstName, clean)
	}},
	{"last_name", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.LastName = sanitized(in.LastName, clean)
	}},
	{"nickname", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.Nickname = sanitized(in.Nickname, clean)
	}},
	{"slug", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.Slug = sanitized(in.Slug, clean)
	}},
	{"description", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.Description = sanitized(in.Description, clean)
	}},
	{"url", func(u *domain.UserUpdate, in UpdateInput, clean func(string) string) {
		u.URL = sanitized(in.URL, clean)
	}},
	{"password", func(u *domain.UserUpdate, in UpdateInput, _ func(string) string) {
		// Passwords pass through untouched; the directory hashes them.
		u.Password = in.Password
	}},
}

// prepareUpdate builds the internal update record from the payload fields the
// schema declares writable. The target id comes from the already
// permission-checked resolution, never from the payload.
func (s *UserService) prepareUpdate(targetID int64, input UpdateInput) domain.UserUpdate {
	update := domain.UserUpdate{ID: targetID}

	for _, entry := range updateAppliers {
		field, ok := schema.Lookup(s.opts.Schema, entry.field)
		if !ok || field.ReadOnly {
			continue
		}
		clean := field.Sanitize
		if clean == nil {
			clean = func(v string) string { return v }
		}
		entry.apply(&update, input, clean)
	}

	return update
}

func sanitized(value *string, clean func(string) string) *string {
	if value == nil {
		return nil
	}
	cleaned := clean(*value)
	return &cleaned
}

// invalidateLookup drops cache entries that the meta write may have made
// stale.
func (s *UserService) invalidateLookup(ctx context.Context, idNumber string, meta map[string]string) {
	if s.cache == nil {
		return
	}

	newNumber, touched := meta[s.opts.MetaKey]
	if !touched {
		return
	}

	for _, key := range []string{idNumber, newNumber} {
		if key == "" {
			continue
		}
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("lookup cache invalidation failed", zap.String("id_number", key), zap.Error(err))
		}
	}
}

func (s *UserService) publishUserUpdated(ctx context.Context, actorID, userID int64, idNumber string, input UpdateInput) {
	if s.events == nil {
		return
	}

	event := domain.UserUpdatedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		IDNumber:      idNumber,
		UpdatedBy:     actorID,
		UpdatedAt:     time.Now().UTC(),
		ChangedFields: changedFields(input),
	}

	if err := s.events.PublishUserUpdated(ctx, event); err != nil {
		s.logger.Warn("publish user updated event failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *UserService) publishRolesAssigned(ctx context.Context, actorID, userID int64, roles []string) {
	if s.events == nil {
		return
	}

	event := domain.RolesAssignedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		RolesAdded: append([]string(nil), roles...),
		AssignedBy: actorID,
		AssignedAt: time.Now().UTC(),
	}

	if err := s.events.PublishRolesAssigned(ctx, event); err != nil {
		s.logger.Warn("publish roles assigned event failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func changedFields(input UpdateInput) []string {
	fields := make([]string, 0, 8)
	add := func(name string, present bool) {
		if present {
			fields = append(fields, name)
		}
	}

	add("email", input.Email != nil)
	add("name", input.Name != nil)
	add("first_name", input.FirstName != nil)
	add("last_name", input.LastName != nil)
	add("nickname", input.Nickname != nil)
	add("slug", input.Slug != nil)
	add("description", input.Description != nil)
	add("url", input.URL != nil)
	add("password", input.Password != nil)
	add("roles", len(input.Roles) > 0)
	add("meta", input.Meta != nil)

	return fields
}
