// Package convert reads and writes bookmark collections in the Netscape bookmark file format
// and in JSON.
package convert

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

const (
	generator         = "LinkBook"
	exportVersion     = "1.0"
	uncategorized     = "Uncategorized"
	exportFolderTitle = "LinkBook Export"
)

var errNothingToExport = apperrors.Validation("no bookmarks to export")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML, "htm", "netscape":
		return FormatHTML, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", apperrors.Validation(fmt.Sprintf("unsupported format %q", s))
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// FileName is the suggested download name for an export created at now.
func (f Format) FileName(now time.Time) string {
	return fmt.Sprintf("bookmarks-%s.%s", now.Format("2006-01-02"), f)
}

// Import parses data in the given format. Entries are not validated beyond having a URL;
// defaults are applied when they are written.
func Import(format Format, data []byte, now time.Time) ([]domain.Bookmark, error) {
	switch format {
	case FormatHTML:
		return ParseHTML(strings.NewReader(string(data)), now)
	case FormatJSON:
		return ParseJSON(data, now)
	}
	return nil, apperrors.Validation(fmt.Sprintf("unsupported format %q", format))
}

func Export(format Format, bookmarks []domain.Bookmark, now time.Time) ([]byte, error) {
	switch format {
	case FormatHTML:
		out, err := ExportHTML(bookmarks, now)
		return []byte(out), err
	case FormatJSON:
		return ExportJSON(bookmarks, now)
	}
	return nil, apperrors.Validation(fmt.Sprintf("unsupported format %q", format))
}

var descriptionPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from <DD> descriptions, which browsers export as HTML. The policy escapes what it keeps, so
// the result is unescaped again to store plain text.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(descriptionPolicy.Sanitize(s)))
}

func splitTags(s string) []string {
	tags := make([]string, 0)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
