package usecase

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/schema"
)

// Link is a single hypermedia link entry.
type Link struct {
	Href string `json:"href"`
}

// responseValuers is the static serialization table: one explicit transform
// per schema field. Iterated in order when assembling a response.
var responseValuers = []struct {
	field string
	value func(s *UserService, ctx context.Context, user *domain.User) (any, error)
}{
	{"id", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.ID, nil
	}},
	{"username", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.Login, nil
	}},
	{"name", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.DisplayName, nil
	}},
	{"first_name", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.FirstName, nil
	}},
	{"last_name", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.LastName, nil
	}},
	{"email", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.Email, nil
	}},
	{"url", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.URL, nil
	}},
	{"description", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.Description, nil
	}},
	{"link", func(s *UserService, _ context.Context, u *domain.User) (any, error) {
		return s.authorLink(u), nil
	}},
	{"nickname", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.Nickname, nil
	}},
	{"slug", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.Slug, nil
	}},
	{"registered_date", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return u.RegisteredAt.UTC().Format(time.RFC3339), nil
	}},
	{"roles", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		// Re-indexed copy so the wire value is always a dense array.
		roles := make([]string, 0, len(u.Roles))
		return append(roles, u.Roles...), nil
	}},
	{"capabilities", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return capabilityMap(u.Capabilities), nil
	}},
	{"extra_capabilities", func(_ *UserService, _ context.Context, u *domain.User) (any, error) {
		return capabilityMap(u.ExtraCapabilities), nil
	}},
	{"avatar_urls", func(s *UserService, _ context.Context, u *domain.User) (any, error) {
		return avatarURLs(u.Email, s.opts.Schema.AvatarSizes), nil
	}},
	{"meta", func(s *UserService, ctx context.Context, u *domain.User) (any, error) {
		meta, err := s.directory.GetMeta(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch user meta: %w", err)
		}
		if meta == nil {
			meta = map[string]string{}
		}
		return meta, nil
	}},
}

// prepareResponse assembles every schema field for the user, runs the
// response hook, and filters down to the fields visible in the requested
// context. Context filtering is always last, regardless of how a field was
// populated.
func (s *UserService) prepareResponse(ctx context.Context, user *domain.User, viewContext schema.Context) (map[string]any, error) {
	data := make(map[string]any, len(responseValuers))

	for _, entry := range responseValuers {
		field, ok := schema.Lookup(s.opts.Schema, entry.field)
		if !ok {
			continue
		}
		if len(field.Contexts) == 0 {
			// password and friends: write-only, never serialized.
			continue
		}
		value, err := entry.value(s, ctx, user)
		if err != nil {
			return nil, err
		}
		data[field.Name] = value
	}

	data = s.responseHook(data, user)
	data = schema.FilterByContext(data, s.opts.Schema, viewContext)
	data["_links"] = s.prepareLinks(user)

	return data, nil
}

// prepareLinks derives the navigation links for the user.
func (s *UserService) prepareLinks(user *domain.User) map[string][]Link {
	base := strings.TrimRight(s.opts.RestURL, "/")
	collection := fmt.Sprintf("%s/%s/%s", base, s.opts.Namespace, s.opts.RestBase)

	return map[string][]Link{
		"self":       {{Href: fmt.Sprintf("%s/%d", collection, user.ID)}},
		"collection": {{Href: collection}},
	}
}

func (s *UserService) authorLink(user *domain.User) string {
	return fmt.Sprintf("%s/author/%s/", strings.TrimRight(s.opts.SiteURL, "/"), user.Slug)
}

// avatarURLs computes one gravatar-style URL per configured pixel size from
// the email address hash.
func avatarURLs(email string, sizes []int) map[string]string {
	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	urls := make(map[string]string, len(sizes))
	for _, size := range sizes {
		urls[fmt.Sprintf("%d", size)] = fmt.Sprintf("https://secure.gravatar.com/avatar/%x?s=%d&d=mm&r=g", hash, size)
	}
	return urls
}

func capabilityMap(caps map[string]bool) map[string]bool {
	if caps == nil {
		return map[string]bool{}
	}
	return caps
}
