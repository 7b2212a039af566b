package schema

import (
	"regexp"
	"strings"
)

var (
	loginDisallowed = regexp.MustCompile(`[^a-zA-Z0-9 _.\-@]`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	scriptPattern   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	allowedTag      = regexp.MustCompile(`(?i)^<\s*(/?)\s*(a|abbr|b|blockquote|br|cite|code|em|i|li|ol|p|pre|strong|ul)\b`)
	hrefAttr        = regexp.MustCompile(`(?i)\bhref="[^"<>]*"`)
	spaceRun        = regexp.MustCompile(`\s+`)
	slugDisallowed  = regexp.MustCompile(`[^a-z0-9_\-]`)
	dashRun         = regexp.MustCompile(`-{2,}`)
)

// SanitizeLogin strips characters that are not valid in a login name.
func SanitizeLogin(value string) string {
	value = stripControl(value)
	value = tagPattern.ReplaceAllString(value, "")
	return strings.TrimSpace(loginDisallowed.ReplaceAllString(value, ""))
}

// SanitizeText removes tags and control characters and collapses whitespace,
// producing a single-line text value.
func SanitizeText(value string) string {
	value = stripControl(value)
	value = tagPattern.ReplaceAllString(value, "")
	value = spaceRun.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// SanitizeRichText keeps a conservative allowlist of inline and block markup
// and removes everything else, including script and style blocks entirely.
// Attributes are dropped, except href on anchors.
func SanitizeRichText(value string) string {
	value = stripControl(value)
	value = scriptPattern.ReplaceAllString(value, "")
	value = tagPattern.ReplaceAllStringFunc(value, func(tag string) string {
		m := allowedTag.FindStringSubmatch(tag)
		if m == nil {
			return ""
		}
		closing, name := m[1], strings.ToLower(m[2])
		if closing == "" && name == "a" {
			if href := hrefAttr.FindString(tag); href != "" {
				return "<a " + href + ">"
			}
		}
		return "<" + closing + name + ">"
	})
	return strings.TrimSpace(value)
}

// SanitizeSlug lowercases the value and reduces it to URL-safe characters.
func SanitizeSlug(value string) string {
	value = stripControl(value)
	value = tagPattern.ReplaceAllString(value, "")
	value = strings.ToLower(strings.TrimSpace(value))
	value = spaceRun.ReplaceAllString(value, "-")
	value = slugDisallowed.ReplaceAllString(value, "")
	value = dashRun.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

func stripControl(value string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, value)
}
