package schema

import "fmt"

// Context is a named visibility level controlling which fields a response
// exposes.
type Context string

const (
	ContextEmbed Context = "embed"
	ContextView  Context = "view"
	ContextEdit  Context = "edit"
)

// ParseContext validates a client-supplied context value.
func ParseContext(value string) (Context, bool) {
	switch Context(value) {
	case ContextEmbed, ContextView, ContextEdit:
		return Context(value), true
	}
	return "", false
}

// Descriptor describes a single user field: its wire name, the contexts it is
// visible in, whether requests may set it, and how raw input is sanitized.
type Descriptor struct {
	Name        string
	Description string
	Type        string
	Format      string
	Contexts    []Context
	ReadOnly    bool
	Required    bool
	Sanitize    func(string) string
}

// InContext reports whether the field is visible in the given context.
func (d Descriptor) InContext(c Context) bool {
	for _, allowed := range d.Contexts {
		if allowed == c {
			return true
		}
	}
	return false
}

// Writable reports whether a request may set the field.
func (d Descriptor) Writable() bool {
	return !d.ReadOnly
}

// Options captures host settings that shape the schema.
type Options struct {
	// AvatarsEnabled appends the avatar_urls sub-object when true.
	AvatarsEnabled bool
	// AvatarSizes lists the configured avatar pixel sizes.
	AvatarSizes []int
}

var allContexts = []Context{ContextEmbed, ContextView, ContextEdit}

// baseFields is the static field table. Order matches the published schema.
// password carries an empty context set: it is part of the write schema but
// never serialized.
var baseFields = []Descriptor{
	{Name: "id", Description: "Unique identifier for the resource.", Type: "integer", Contexts: allContexts, ReadOnly: true},
	{Name: "username", Description: "Login name for the resource.", Type: "string", Contexts: []Context{ContextEdit}, Required: true, Sanitize: SanitizeLogin},
	{Name: "name", Description: "Display name for the resource.", Type: "string", Contexts: allContexts, Sanitize: SanitizeText},
	{Name: "first_name", Description: "First name for the resource.", Type: "string", Contexts: []Context{ContextEdit}, Sanitize: SanitizeText},
	{Name: "last_name", Description: "Last name for the resource.", Type: "string", Contexts: []Context{ContextEdit}, Sanitize: SanitizeText},
	{Name: "email", Description: "The email address for the resource.", Type: "string", Format: "email", Contexts: []Context{ContextEdit}, Required: true},
	{Name: "url", Description: "URL of the resource.", Type: "string", Format: "uri", Contexts: allContexts},
	{Name: "description", Description: "Description of the resource.", Type: "string", Contexts: allContexts, Sanitize: SanitizeRichText},
	{Name: "link", Description: "Author URL to the resource.", Type: "string", Format: "uri", Contexts: allContexts, ReadOnly: true},
	{Name: "nickname", Description: "The nickname for the resource.", Type: "string", Contexts: []Context{ContextEdit}, Sanitize: SanitizeText},
	{Name: "slug", Description: "An alphanumeric identifier for the resource.", Type: "string", Contexts: allContexts, Sanitize: SanitizeSlug},
	{Name: "registered_date", Description: "Registration date for the resource.", Type: "string", Format: "date-time", Contexts: []Context{ContextEdit}, ReadOnly: true},
	{Name: "roles", Description: "Roles assigned to the resource.", Type: "array", Contexts: []Context{ContextEdit}},
	{Name: "password", Description: "Password for the resource (never included).", Type: "string", Contexts: nil, Required: true},
	{Name: "capabilities", Description: "All capabilities assigned to the resource.", Type: "object", Contexts: []Context{ContextEdit}, ReadOnly: true},
	{Name: "extra_capabilities", Description: "Any extra capabilities assigned to the resource.", Type: "object", Contexts: []Context{ContextEdit}, ReadOnly: true},
}

var metaField = Descriptor{
	Name:        "meta",
	Description: "Meta fields.",
	Type:        "object",
	Contexts:    []Context{ContextView, ContextEdit},
}

// Describe returns the ordered field table for the given host options,
// including the conditional avatar descriptor and the meta field.
func Describe(opts Options) []Descriptor {
	fields := make([]Descriptor, 0, len(baseFields)+2)
	fields = append(fields, baseFields...)

	if opts.AvatarsEnabled {
		fields = append(fields, Descriptor{
			Name:        "avatar_urls",
			Description: "Avatar URLs for the resource.",
			Type:        "object",
			Contexts:    allContexts,
			ReadOnly:    true,
		})
	}

	fields = append(fields, metaField)
	return fields
}

// Lookup returns the descriptor for the named field, if present.
func Lookup(opts Options, name string) (Descriptor, bool) {
	for _, field := range Describe(opts) {
		if field.Name == name {
			return field, true
		}
	}
	return Descriptor{}, false
}

// Document renders the field table as a JSON-Schema draft-04 compatible
// document.
func Document(opts Options) map[string]any {
	properties := make(map[string]any)

	for _, field := range Describe(opts) {
		prop := map[string]any{
			"description": field.Description,
			"type":        field.Type,
			"context":     contextStrings(field.Contexts),
		}
		if field.Format != "" {
			prop["format"] = field.Format
		}
		if field.ReadOnly {
			prop["readonly"] = true
		}
		if field.Required {
			prop["required"] = true
		}

		if field.Name == "avatar_urls" {
			avatarProps := make(map[string]any, len(opts.AvatarSizes))
			for _, size := range opts.AvatarSizes {
				avatarProps[fmt.Sprintf("%d", size)] = map[string]any{
					"description": fmt.Sprintf("Avatar URL with image size of %d pixels.", size),
					"type":        "string",
					"format":      "uri",
					"context":     contextStrings(allContexts),
				}
			}
			prop["properties"] = avatarProps
		}

		properties[field.Name] = prop
	}

	return map[string]any{
		"$schema":    "http://json-schema.org/draft-04/schema#",
		"title":      "user",
		"type":       "object",
		"properties": properties,
	}
}

// FilterByContext drops every field whose descriptor excludes the given
// context. Fields without a descriptor (added by extension hooks) pass
// through untouched.
func FilterByContext(data map[string]any, opts Options, c Context) map[string]any {
	filtered := make(map[string]any, len(data))
	for name, value := range data {
		field, known := Lookup(opts, name)
		if known && !field.InContext(c) {
			continue
		}
		filtered[name] = value
	}
	return filtered
}

func contextStrings(contexts []Context) []string {
	out := make([]string, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, string(c))
	}
	return out
}
