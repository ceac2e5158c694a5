// Package urlnorm canonicalises user supplied URLs for storage and cache lookups.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// HasScheme reports whether raw starts with http:// or https://.
func HasScheme(raw string) bool {
	return schemePattern.MatchString(raw)
}

// EnsureScheme prepends https:// when raw has no http or https scheme. The rest of the
// string is left untouched, including its casing.
func EnsureScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || HasScheme(raw) {
		return raw
	}
	return "https://" + raw
}

// Canonical returns scheme://host/path?query with trailing slashes removed from the path.
// Fragments and user info are dropped. Input that does not parse as a URL is returned with
// only the scheme prepended.
func Canonical(raw string) string {
	withScheme := EnsureScheme(raw)
	u, err := url.Parse(withScheme)
	if err != nil || u.Host == "" {
		return withScheme
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// Key is the lower-cased Canonical form. Only use it for lookups, never for display.
func Key(raw string) string {
	return strings.ToLower(Canonical(raw))
}

// Domain returns the host name of raw without port, or "" when there is none.
func Domain(raw string) string {
	u, err := url.Parse(EnsureScheme(raw))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
