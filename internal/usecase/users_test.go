package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/schema"
	"github.com/wrdsb/user-directory-api/internal/repository"
)

type fakeDirectory struct {
	users  map[int64]domain.User
	meta   map[string][]int64
	emails map[string]int64
	slugs  map[string]int64

	updates     []domain.UserUpdate
	rolesAdded  map[int64][]string
	metaWrites  map[int64]map[string]string
	updateErr   error
	findMetaErr error
}

func newFakeDirectory(users ...domain.User) *fakeDirectory {
	d := &fakeDirectory{
		users:      make(map[int64]domain.User),
		meta:       make(map[string][]int64),
		emails:     make(map[string]int64),
		slugs:      make(map[string]int64),
		rolesAdded: make(map[int64][]string),
		metaWrites: make(map[int64]map[string]string),
	}
	for _, user := range users {
		d.users[user.ID] = user
		if user.Email != "" {
			d.emails[user.Email] = user.ID
		}
		if user.Slug != "" {
			d.slugs[user.Slug] = user.ID
		}
		for key, value := range user.Meta {
			mapKey := key + "=" + value
			d.meta[mapKey] = append(d.meta[mapKey], user.ID)
		}
	}
	return d
}

func (d *fakeDirectory) FindByMeta(_ context.Context, key, value string) ([]domain.User, error) {
	if d.findMetaErr != nil {
		return nil, d.findMetaErr
	}
	ids := d.meta[key+"="+value]
	matches := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, d.users[id])
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].ID < matches[i].ID {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	return matches, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, id int64) (*domain.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (d *fakeDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	id, ok := d.emails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := d.users[id]
	return &user, nil
}

func (d *fakeDirectory) GetBySlug(_ context.Context, slug string) (*domain.User, error) {
	id, ok := d.slugs[slug]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := d.users[id]
	return &user, nil
}

func (d *fakeDirectory) GetMeta(_ context.Context, userID int64) (map[string]string, error) {
	user, ok := d.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user.Meta, nil
}

func (d *fakeDirectory) Update(_ context.Context, update domain.UserUpdate) error {
	if d.updateErr != nil {
		return d.updateErr
	}
	d.updates = append(d.updates, update)
	user := d.users[update.ID]
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.DisplayName != nil {
		user.DisplayName = *update.DisplayName
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.Nickname != nil {
		user.Nickname = *update.Nickname
	}
	if update.Slug != nil {
		user.Slug = *update.Slug
	}
	if update.Description != nil {
		user.Description = *update.Description
	}
	if update.URL != nil {
		user.URL = *update.URL
	}
	d.users[update.ID] = user
	return nil
}

func (d *fakeDirectory) AddRoles(_ context.Context, userID int64, roles []string) error {
	d.rolesAdded[userID] = append(d.rolesAdded[userID], roles...)
	user := d.users[userID]
	user.Roles = append(user.Roles, roles...)
	d.users[userID] = user
	return nil
}

func (d *fakeDirectory) UpdateMeta(_ context.Context, userID int64, meta map[string]string) error {
	if d.metaWrites[userID] == nil {
		d.metaWrites[userID] = make(map[string]string)
	}
	for key, value := range meta {
		d.metaWrites[userID][key] = value
	}
	return nil
}

type fakeAuthorizer struct {
	caps map[string]bool
}

func (a *fakeAuthorizer) Can(_ context.Context, actorID int64, capability string) (bool, error) {
	if actorID == 0 {
		return false, nil
	}
	return a.caps[capability], nil
}

func (a *fakeAuthorizer) CanEditUser(_ context.Context, actorID, targetID int64) (bool, error) {
	if actorID == 0 {
		return false, nil
	}
	if actorID == targetID {
		return true, nil
	}
	return a.caps["edit_users"], nil
}

type fakeRoleRegistry struct {
	roles    map[string]domain.Role
	editable map[string]struct{}
}

func (r *fakeRoleRegistry) Get(_ context.Context, name string) (*domain.Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *fakeRoleRegistry) EditableBy(context.Context, int64) (map[string]struct{}, error) {
	return r.editable, nil
}

type fakeContent struct {
	published map[int64]int
}

func (c *fakeContent) CountPublishedByAuthor(_ context.Context, authorID int64) (int, error) {
	return c.published[authorID], nil
}

type recordingPublisher struct {
	updated []domain.UserUpdatedEvent
	roles   []domain.RolesAssignedEvent
}

func (p *recordingPublisher) PublishUserUpdated(_ context.Context, event domain.UserUpdatedEvent) error {
	p.updated = append(p.updated, event)
	return nil
}

func (p *recordingPublisher) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	p.roles = append(p.roles, event)
	return nil
}

type fakeLookupCache struct {
	entries     map[string]int64
	invalidated []string
}

func (c *fakeLookupCache) GetUserID(_ context.Context, idNumber string) (int64, bool, error) {
	id, ok := c.entries[idNumber]
	return id, ok, nil
}

func (c *fakeLookupCache) SetUserID(_ context.Context, idNumber string, userID int64) error {
	c.entries[idNumber] = userID
	return nil
}

func (c *fakeLookupCache) Invalidate(_ context.Context, idNumber string) error {
	c.invalidated = append(c.invalidated, idNumber)
	delete(c.entries, idNumber)
	return nil
}

func testOptions() Options {
	return Options{
		Namespace: "wrdsb/v2",
		RestBase:  "user-by-id-number",
		RestURL:   "https://example.org/api",
		SiteURL:   "https://example.org",
		MetaKey:   DefaultMetaKey,
		Schema: schema.Options{
			AvatarsEnabled: true,
			AvatarSizes:    []int{24, 48, 96},
		},
	}
}

func testUser() domain.User {
	return domain.User{
		ID:           42,
		Login:        "jsmith",
		DisplayName:  "Jordan Smith",
		FirstName:    "Jordan",
		LastName:     "Smith",
		Email:        "jsmith@example.org",
		URL:          "https://example.org/~jsmith",
		Description:  "Teacher.",
		Nickname:     "jordan",
		Slug:         "jordan-smith",
		RegisteredAt: time.Date(2020, 9, 1, 8, 0, 0, 0, time.UTC),
		Roles:        []string{"subscriber"},
		Capabilities: map[string]bool{"read": true},
		Meta:         map[string]string{DefaultMetaKey: "ABC123"},
	}
}

func newTestService(dir *fakeDirectory, auth *fakeAuthorizer, reg *fakeRoleRegistry, content *fakeContent, events *recordingPublisher) *UserService {
	if auth == nil {
		auth = &fakeAuthorizer{caps: map[string]bool{}}
	}
	if reg == nil {
		reg = &fakeRoleRegistry{roles: map[string]domain.Role{}, editable: map[string]struct{}{}}
	}
	if content == nil {
		content = &fakeContent{published: map[int64]int{}}
	}
	if events == nil {
		events = &recordingPublisher{}
	}
	return NewUserService(dir, auth, reg, content, events, testOptions(), nil)
}

func requireRequestError(t *testing.T, err error, code string, status int) *RequestError {
	t.Helper()
	reqErr, ok := AsRequestError(err)
	if !ok {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Code != code {
		t.Fatalf("expected code %q, got %q", code, reqErr.Code)
	}
	if reqErr.Status != status {
		t.Fatalf("expected status %d, got %d", status, reqErr.Status)
	}
	return reqErr
}

func TestResolveRejectsBlankIdentifier(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	for _, id := range []string{"", "   ", "\t"} {
		_, err := svc.Resolve(context.Background(), id)
		requireRequestError(t, err, "rest_user_invalid_id", 404)
	}
}

func TestResolveUnknownIdentifier(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "NOPE")
	requireRequestError(t, err, "rest_user_invalid_id", 404)
}

func TestResolveTrimsIdentifier(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	user, err := svc.Resolve(context.Background(), "  ABC123  ")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.ID != 42 {
		t.Fatalf("expected user 42, got %d", user.ID)
	}
}

func TestResolveDuplicatePicksLowestID(t *testing.T) {
	first := testUser()
	second := testUser()
	second.ID = 7
	second.Email = "other@example.org"
	second.Slug = "other"

	svc := newTestService(newFakeDirectory(first, second), nil, nil, nil, nil)

	user, err := svc.Resolve(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected lowest id 7, got %d", user.ID)
	}
}

func TestResolvePopulatesLookupCache(t *testing.T) {
	cache := &fakeLookupCache{entries: map[string]int64{}}
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil).WithLookupCache(cache)

	if _, err := svc.Resolve(context.Background(), "ABC123"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cache.entries["ABC123"] != 42 {
		t.Fatalf("expected cache entry for ABC123, got %v", cache.entries)
	}
}

func TestResolveDropsStaleCacheEntry(t *testing.T) {
	cache := &fakeLookupCache{entries: map[string]int64{"ABC123": 999}}
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil).WithLookupCache(cache)

	user, err := svc.Resolve(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.ID != 42 {
		t.Fatalf("expected user 42 after stale entry, got %d", user.ID)
	}
	if len(cache.invalidated) == 0 || cache.invalidated[0] != "ABC123" {
		t.Fatalf("expected stale entry invalidation, got %v", cache.invalidated)
	}
}

func TestGetItemSelfAlwaysAllowed(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	data, err := svc.GetItem(context.Background(), 42, "ABC123", schema.ContextEdit)
	if err != nil {
		t.Fatalf("GetItem returned error: %v", err)
	}
	if data["id"] != int64(42) {
		t.Fatalf("expected id 42, got %v", data["id"])
	}
}

func TestGetItemEditContextRequiresListUsers(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	_, err := svc.GetItem(context.Background(), 0, "ABC123", schema.ContextEdit)
	requireRequestError(t, err, "rest_user_cannot_view", 401)

	_, err = svc.GetItem(context.Background(), 77, "ABC123", schema.ContextEdit)
	requireRequestError(t, err, "rest_user_cannot_view", 403)
}

func TestGetItemViewRequiresPublishedContentOrCapability(t *testing.T) {
	dir := newFakeDirectory(testUser())

	svc := newTestService(dir, nil, nil, nil, nil)
	_, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextView)
	requireRequestError(t, err, "rest_user_cannot_view", 403)

	content := &fakeContent{published: map[int64]int{42: 3}}
	svc = newTestService(dir, nil, nil, content, nil)
	if _, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextView); err != nil {
		t.Fatalf("expected published author to be viewable, got %v", err)
	}

	auth := &fakeAuthorizer{caps: map[string]bool{"list_users": true}}
	svc = newTestService(dir, auth, nil, nil, nil)
	if _, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextView); err != nil {
		t.Fatalf("expected list_users actor to be allowed, got %v", err)
	}
}

func TestGetItemViewContextFiltersEditFields(t *testing.T) {
	auth := &fakeAuthorizer{caps: map[string]bool{"list_users": true}}
	svc := newTestService(newFakeDirectory(testUser()), auth, nil, nil, nil)

	data, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextView)
	if err != nil {
		t.Fatalf("GetItem returned error: %v", err)
	}

	for _, field := range []string{"id", "name", "url", "description", "slug", "avatar_urls", "meta", "link"} {
		if _, ok := data[field]; !ok {
			t.Errorf("expected field %q in view context", field)
		}
	}
	for _, field := range []string{"email", "roles", "capabilities", "extra_capabilities", "first_name", "last_name", "username", "registered_date", "password"} {
		if _, ok := data[field]; ok {
			t.Errorf("field %q must not appear in view context", field)
		}
	}

	links, ok := data["_links"].(map[string][]Link)
	if !ok {
		t.Fatalf("expected _links, got %T", data["_links"])
	}
	if links["self"][0].Href != "https://example.org/api/wrdsb/v2/user-by-id-number/42" {
		t.Fatalf("unexpected self link %q", links["self"][0].Href)
	}
	if links["collection"][0].Href != "https://example.org/api/wrdsb/v2/user-by-id-number" {
		t.Fatalf("unexpected collection link %q", links["collection"][0].Href)
	}
}

func TestGetItemEmbedContextExcludesMetaAndFirstName(t *testing.T) {
	auth := &fakeAuthorizer{caps: map[string]bool{"list_users": true}}
	svc := newTestService(newFakeDirectory(testUser()), auth, nil, nil, nil)

	data, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextEmbed)
	if err != nil {
		t.Fatalf("GetItem returned error: %v", err)
	}
	if _, ok := data["meta"]; ok {
		t.Error("meta must not appear in embed context")
	}
	if _, ok := data["first_name"]; ok {
		t.Error("first_name must not appear in embed context")
	}
	if _, ok := data["name"]; !ok {
		t.Error("name should appear in embed context")
	}
}

func TestGetItemNeverSerializesPassword(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	for _, viewContext := range []schema.Context{schema.ContextEmbed, schema.ContextView, schema.ContextEdit} {
		data, err := svc.GetItem(context.Background(), 42, "ABC123", viewContext)
		if err != nil {
			t.Fatalf("GetItem(%s) returned error: %v", viewContext, err)
		}
		if _, ok := data["password"]; ok {
			t.Fatalf("password leaked in %s context", viewContext)
		}
	}
}

func TestGetItemResponseHookRunsBeforeFiltering(t *testing.T) {
	auth := &fakeAuthorizer{caps: map[string]bool{"list_users": true}}
	svc := newTestService(newFakeDirectory(testUser()), auth, nil, nil, nil).
		WithResponseHook(func(data map[string]any, _ *domain.User) map[string]any {
			data["building"] = "main-campus"
			data["email"] = "hook@example.org"
			return data
		})

	data, err := svc.GetItem(context.Background(), 77, "ABC123", schema.ContextView)
	if err != nil {
		t.Fatalf("GetItem returned error: %v", err)
	}
	if data["building"] != "main-campus" {
		t.Error("hook-added unknown field should survive filtering")
	}
	if _, ok := data["email"]; ok {
		t.Error("hook-populated email must still be dropped outside edit context")
	}
}

func TestUpdateItemRequiresEditAccess(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)
	name := "New Name"

	_, err := svc.UpdateItem(context.Background(), 0, "ABC123", UpdateInput{Name: &name})
	requireRequestError(t, err, "rest_cannot_edit", 401)

	_, err = svc.UpdateItem(context.Background(), 77, "ABC123", UpdateInput{Name: &name})
	requireRequestError(t, err, "rest_cannot_edit", 403)
}

func TestUpdateItemRolesRequireEditUsersCapability(t *testing.T) {
	svc := newTestService(newFakeDirectory(testUser()), nil, nil, nil, nil)

	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Roles: []string{"editor"}})
	requireRequestError(t, err, "rest_cannot_edit_roles", 403)
}

func TestUpdateItemEmailCollisionAbortsBeforeWrite(t *testing.T) {
	other := testUser()
	other.ID = 9
	other.Email = "taken@example.org"
	other.Slug = "other"
	other.Meta = nil

	dir := newFakeDirectory(testUser(), other)
	svc := newTestService(dir, nil, nil, nil, nil)

	email := "taken@example.org"
	name := "New Name"
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Email: &email, Name: &name})
	requireRequestError(t, err, "rest_user_invalid_email", 400)

	if len(dir.updates) != 0 {
		t.Fatalf("validation failure must not write, got %d updates", len(dir.updates))
	}
}

func TestUpdateItemUsernameImmutable(t *testing.T) {
	dir := newFakeDirectory(testUser())
	svc := newTestService(dir, nil, nil, nil, nil)

	username := "newlogin"
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Username: &username})
	requireRequestError(t, err, "rest_user_invalid_argument", 400)

	// Echoing the current login back is a no-op, not an error.
	same := "jsmith"
	if _, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Username: &same}); err != nil {
		t.Fatalf("same username should pass, got %v", err)
	}
}

func TestUpdateItemSlugCollision(t *testing.T) {
	other := testUser()
	other.ID = 9
	other.Email = "other@example.org"
	other.Slug = "taken-slug"
	other.Meta = nil

	dir := newFakeDirectory(testUser(), other)
	svc := newTestService(dir, nil, nil, nil, nil)

	slug := "taken-slug"
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Slug: &slug})
	requireRequestError(t, err, "rest_user_invalid_slug", 400)
}

func TestUpdateItemUnknownRoleAbortsAtomically(t *testing.T) {
	dir := newFakeDirectory(testUser())
	auth := &fakeAuthorizer{caps: map[string]bool{"edit_users": true, "list_users": true}}
	reg := &fakeRoleRegistry{
		roles:    map[string]domain.Role{"editor": {Name: "editor"}},
		editable: map[string]struct{}{"editor": {}},
	}
	svc := newTestService(dir, auth, reg, nil, nil)

	name := "New Name"
	_, err := svc.UpdateItem(context.Background(), 77, "ABC123", UpdateInput{
		Name:  &name,
		Roles: []string{"editor", "ghost"},
	})
	reqErr := requireRequestError(t, err, "rest_user_invalid_role", 400)
	if !strings.Contains(reqErr.Message, "ghost") {
		t.Fatalf("expected role name in message, got %q", reqErr.Message)
	}

	if len(dir.updates) != 0 || len(dir.rolesAdded) != 0 {
		t.Fatal("failed role validation must leave the directory untouched")
	}
}

func TestUpdateItemSelfRoleGrantDenied(t *testing.T) {
	dir := newFakeDirectory(testUser())
	auth := &fakeAuthorizer{caps: map[string]bool{"edit_users": true}}
	reg := &fakeRoleRegistry{
		roles:    map[string]domain.Role{"subscriber": {Name: "subscriber"}},
		editable: map[string]struct{}{"subscriber": {}},
	}
	svc := newTestService(dir, auth, reg, nil, nil)

	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Roles: []string{"subscriber"}})
	requireRequestError(t, err, "rest_user_invalid_role", 403)
}

func TestUpdateItemSelfRoleGrantAllowedWithEditUsersRole(t *testing.T) {
	dir := newFakeDirectory(testUser())
	auth := &fakeAuthorizer{caps: map[string]bool{"edit_users": true}}
	reg := &fakeRoleRegistry{
		roles: map[string]domain.Role{
			"administrator": {Name: "administrator", Capabilities: map[string]bool{"edit_users": true}},
		},
		editable: map[string]struct{}{"administrator": {}},
	}
	svc := newTestService(dir, auth, reg, nil, nil)

	if _, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Roles: []string{"administrator"}}); err != nil {
		t.Fatalf("role carrying edit_users should be self-grantable, got %v", err)
	}
	if got := dir.rolesAdded[42]; len(got) != 1 || got[0] != "administrator" {
		t.Fatalf("expected administrator role applied, got %v", got)
	}
}

func TestUpdateItemRoleOutsideEditableSet(t *testing.T) {
	dir := newFakeDirectory(testUser())
	auth := &fakeAuthorizer{caps: map[string]bool{"edit_users": true}}
	reg := &fakeRoleRegistry{
		roles:    map[string]domain.Role{"network-admin": {Name: "network-admin", NetworkOnly: true}},
		editable: map[string]struct{}{},
	}
	svc := newTestService(dir, auth, reg, nil, nil)

	_, err := svc.UpdateItem(context.Background(), 77, "ABC123", UpdateInput{Roles: []string{"network-admin"}})
	requireRequestError(t, err, "rest_user_invalid_role", 403)
}

func TestUpdateItemSanitizesAndApplies(t *testing.T) {
	dir := newFakeDirectory(testUser())
	events := &recordingPublisher{}
	svc := newTestService(dir, nil, nil, nil, events)

	name := "  New <b>Name</b>  "
	description := `Hello <script>alert(1)</script><em>there</em>`
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{
		Name:        &name,
		Description: &description,
	})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}

	if len(dir.updates) != 1 {
		t.Fatalf("expected one directory write, got %d", len(dir.updates))
	}
	update := dir.updates[0]
	if update.ID != 42 {
		t.Fatalf("update must target the resolved user, got %d", update.ID)
	}
	if update.DisplayName == nil || *update.DisplayName != "New Name" {
		t.Fatalf("expected sanitized display name, got %v", update.DisplayName)
	}
	if update.Description == nil || *update.Description != "Hello <em>there</em>" {
		t.Fatalf("expected script stripped from description, got %v", update.Description)
	}

	if len(events.updated) != 1 {
		t.Fatalf("expected one user updated event, got %d", len(events.updated))
	}
	if events.updated[0].UserID != 42 || events.updated[0].UpdatedBy != 42 {
		t.Fatalf("unexpected event attribution: %+v", events.updated[0])
	}
}

func TestUpdateItemReturnsEditContextView(t *testing.T) {
	dir := newFakeDirectory(testUser())
	svc := newTestService(dir, nil, nil, nil, nil)

	name := "Renamed"
	data, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}

	if data["name"] != "Renamed" {
		t.Fatalf("expected refreshed name, got %v", data["name"])
	}
	if _, ok := data["email"]; !ok {
		t.Error("edit context response should include email")
	}
	if _, ok := data["password"]; ok {
		t.Error("password must never be serialized")
	}
}

func TestUpdateItemPasswordNeverEchoed(t *testing.T) {
	dir := newFakeDirectory(testUser())
	svc := newTestService(dir, nil, nil, nil, nil)

	password := "correct horse battery staple"
	data, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Password: &password})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}
	if _, ok := data["password"]; ok {
		t.Fatal("password must never appear in the response")
	}
	if dir.updates[0].Password == nil || *dir.updates[0].Password != password {
		t.Fatal("password must reach the directory write untouched")
	}
}

func TestUpdateItemDirectoryErrorPropagatesVerbatim(t *testing.T) {
	dir := newFakeDirectory(testUser())
	storeErr := errors.New("directory: constraint violation")
	dir.updateErr = storeErr
	svc := newTestService(dir, nil, nil, nil, nil)

	name := "New Name"
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Name: &name})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected directory error verbatim, got %v", err)
	}
}

func TestUpdateItemEmptyPayloadSkipsWrite(t *testing.T) {
	dir := newFakeDirectory(testUser())
	svc := newTestService(dir, nil, nil, nil, nil)

	data, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}
	if len(dir.updates) != 0 {
		t.Fatalf("empty payload must not write, got %d updates", len(dir.updates))
	}
	if data["id"] != int64(42) {
		t.Fatalf("expected current record back, got %v", data["id"])
	}
}

func TestUpdateItemMetaWriteInvalidatesLookupCache(t *testing.T) {
	dir := newFakeDirectory(testUser())
	cache := &fakeLookupCache{entries: map[string]int64{"ABC123": 42}}
	svc := newTestService(dir, nil, nil, nil, nil).WithLookupCache(cache)

	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{
		Meta: map[string]string{DefaultMetaKey: "XYZ789"},
	})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}

	if dir.metaWrites[42][DefaultMetaKey] != "XYZ789" {
		t.Fatalf("expected meta upsert, got %v", dir.metaWrites[42])
	}

	invalidated := map[string]bool{}
	for _, key := range cache.invalidated {
		invalidated[key] = true
	}
	if !invalidated["ABC123"] || !invalidated["XYZ789"] {
		t.Fatalf("expected both identifiers invalidated, got %v", cache.invalidated)
	}
}

func TestUpdateItemRolesAppliedAdditively(t *testing.T) {
	dir := newFakeDirectory(testUser())
	auth := &fakeAuthorizer{caps: map[string]bool{"edit_users": true}}
	reg := &fakeRoleRegistry{
		roles:    map[string]domain.Role{"editor": {Name: "editor"}},
		editable: map[string]struct{}{"editor": {}},
	}
	events := &recordingPublisher{}
	svc := newTestService(dir, auth, reg, nil, events)

	data, err := svc.UpdateItem(context.Background(), 77, "ABC123", UpdateInput{Roles: []string{"editor"}})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}

	roles, ok := data["roles"].([]string)
	if !ok {
		t.Fatalf("expected roles slice, got %T", data["roles"])
	}
	want := map[string]bool{"subscriber": false, "editor": false}
	for _, role := range roles {
		if _, known := want[role]; !known {
			t.Fatalf("unexpected role %q", role)
		}
		want[role] = true
	}
	for role, seen := range want {
		if !seen {
			t.Fatalf("role %q missing; existing assignments must survive", role)
		}
	}

	if len(events.roles) != 1 || events.roles[0].RolesAdded[0] != "editor" {
		t.Fatalf("expected roles assigned event, got %+v", events.roles)
	}
}

func TestUpdateHookErrorAborts(t *testing.T) {
	dir := newFakeDirectory(testUser())
	hookErr := errors.New("hook rejected")
	svc := newTestService(dir, nil, nil, nil, nil).
		WithUpdateHook(func(context.Context, *domain.User, UpdateInput) error {
			return hookErr
		})

	name := "New Name"
	_, err := svc.UpdateItem(context.Background(), 42, "ABC123", UpdateInput{Name: &name})
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
}
