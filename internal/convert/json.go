package convert

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/urlnorm"
)

type field string

const (
	fieldURL         field = "url"
	fieldTitle       field = "title"
	fieldDescription field = "description"
	fieldCreatedAt   field = "createdAt"
	fieldTags        field = "tags"
	fieldFolder      field = "folder"
	fieldFavicon     field = "favicon"
)

// fieldAliases is the complete list of keys accepted for each bookmark field, in order of
// preference.
var fieldAliases = map[field][]string{
	fieldURL:         {"url", "uri", "link"},
	fieldTitle:       {"title", "name"},
	fieldDescription: {"description", "desc", "note"},
	fieldCreatedAt:   {"createdAt", "created", "date"},
	fieldTags:        {"tags", "categories", "labels"},
	fieldFolder:      {"folder", "collection", "category"},
	fieldFavicon:     {"favicon", "icon"},
}

// collectionKeys are the object keys that may hold the bookmark list.
var collectionKeys = []string{"bookmarks", "items"}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseJSON reads a bare array of bookmark objects, or an object carrying one under
// "bookmarks" or "items". Entries without a URL are dropped.
func ParseJSON(data []byte, now time.Time) ([]domain.Bookmark, error) {
	var doc any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, apperrors.Format("invalid JSON", err)
	}
	entries, ok := entryList(doc)
	if !ok {
		return nil, apperrors.Format("unsupported JSON format: expected an array or an object with bookmarks or items", nil)
	}
	bookmarks := make([]domain.Bookmark, 0, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if b, ok := fromEntry(obj, now); ok {
			bookmarks = append(bookmarks, b)
		}
	}
	return bookmarks, nil
}

func entryList(doc any) ([]any, bool) {
	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range collectionKeys {
			if list, ok := v[key].([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func fromEntry(obj map[string]any, now time.Time) (domain.Bookmark, bool) {
	rawURL := lookupString(obj, fieldURL)
	if rawURL == "" {
		return domain.Bookmark{}, false
	}
	url := urlnorm.EnsureScheme(rawURL)
	title := lookupString(obj, fieldTitle)
	if title == "" {
		title = url
	}
	created := lookupTime(obj, fieldCreatedAt, now)
	b := domain.Bookmark{
		URL:         url,
		Title:       title,
		Description: lookupText(obj, fieldDescription),
		Tags:        lookupTags(obj),
		Folder:      optional(lookupString(obj, fieldFolder)),
		Favicon:     optional(lookupString(obj, fieldFavicon)),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if raw, ok := obj["metadata"].(map[string]any); ok {
		b.Metadata = decodeMetadata(raw)
	}
	return b, true
}

func lookup(obj map[string]any, f field) (any, bool) {
	for _, key := range fieldAliases[f] {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(obj map[string]any, f field) string {
	for _, key := range fieldAliases[f] {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// lookupText returns free text as written. Descriptions are plain text in this format, so
// markup-like content is kept verbatim.
func lookupText(obj map[string]any, f field) string {
	for _, key := range fieldAliases[f] {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// lookupTags accepts a list of strings or one comma separated string.
func lookupTags(obj map[string]any) []string {
	v, ok := lookup(obj, fieldTags)
	if !ok {
		return []string{}
	}
	switch tags := v.(type) {
	case string:
		return splitTags(tags)
	case []any:
		result := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				result = append(result, strings.TrimSpace(s))
			}
		}
		return result
	}
	return []string{}
}

// lookupTime accepts ISO-8601 strings and unix timestamps in seconds or milliseconds.
func lookupTime(obj map[string]any, f field, fallback time.Time) time.Time {
	v, ok := lookup(obj, f)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed
			}
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			return time.Unix(n, 0).UTC()
		}
	}
	return fallback
}

func decodeMetadata(raw map[string]any) *domain.Metadata {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var md domain.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil
	}
	return &md
}

type jsonExport struct {
	Version    string               `json:"version"`
	Generator  string               `json:"generator"`
	ExportDate time.Time            `json:"exportDate"`
	Count      int                  `json:"count"`
	Bookmarks  []jsonExportBookmark `json:"bookmarks"`
}

type jsonExportBookmark struct {
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"createdAt"`
	Tags        []string         `json:"tags"`
	Folder      *string          `json:"folder"`
	Favicon     *string          `json:"favicon"`
	Metadata    *domain.Metadata `json:"metadata"`
}

// ExportJSON writes the versioned export envelope.
func ExportJSON(bookmarks []domain.Bookmark, now time.Time) ([]byte, error) {
	if len(bookmarks) == 0 {
		return nil, errNothingToExport
	}
	export := jsonExport{
		Version:    exportVersion,
		Generator:  generator,
		ExportDate: now.UTC(),
		Count:      len(bookmarks),
		Bookmarks:  make([]jsonExportBookmark, 0, len(bookmarks)),
	}
	for _, b := range bookmarks {
		tags := b.Tags
		if tags == nil {
			tags = []string{}
		}
		export.Bookmarks = append(export.Bookmarks, jsonExportBookmark{
			URL:         b.URL,
			Title:       b.Title,
			Description: b.Description,
			CreatedAt:   b.CreatedAt.UTC(),
			Tags:        tags,
			Folder:      b.Folder,
			Favicon:     b.Favicon,
			Metadata:    b.Metadata,
		})
	}
	return json.MarshalIndent(export, "", "  ")
}
