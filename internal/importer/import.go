// Package importer loads bookmark files from disk for the command line importer.
package importer

import (
	"context"
	"encoding/json"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/convert"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
)

// FormatPinboard is the JSON dump of the Pinboard API (posts/all).
const FormatPinboard convert.Format = "pinboard"

// Target receives the parsed bookmarks. *service.Bookmarks implements it.
type Target interface {
	BatchAdd(ctx context.Context, userID string, bookmarks []domain.Bookmark) ([]domain.Bookmark, error)
}

type PinboardBookmark []struct {
	Href        string    `json:"href"`
	Description string    `json:"description"`
	Extended    string    `json:"extended"`
	Meta        string    `json:"meta"`
	Hash        string    `json:"hash"`
	Time        time.Time `json:"time"`
	Shared      string    `json:"shared"`
	Toread      string    `json:"toread"`
	Tags        string    `json:"tags"`
}

var stripTags = bluemonday.StrictPolicy()

// DetectFormat picks the format from name when format is empty.
func DetectFormat(name, format string) (convert.Format, error) {
	if format == string(FormatPinboard) {
		return FormatPinboard, nil
	}
	if format != "" {
		return convert.ParseFormat(format)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return convert.FormatHTML, nil
	case ".json":
		return convert.FormatJSON, nil
	}
	return "", apperrors.Validation("cannot tell the format of " + name + ", pass one explicitly")
}

// ParsePinboard converts a Pinboard export. Pinboard stores the title in "description" and the
// description as HTML in "extended".
func ParsePinboard(data []byte) ([]domain.Bookmark, error) {
	pinboardBookmarks := make(PinboardBookmark, 0)
	if err := json.Unmarshal(data, &pinboardBookmarks); err != nil {
		return nil, apperrors.Format("invalid Pinboard export", err)
	}
	bookmarks := make([]domain.Bookmark, 0, len(pinboardBookmarks))
	for _, b := range pinboardBookmarks {
		if strings.TrimSpace(b.Href) == "" {
			continue
		}
		bookmarks = append(bookmarks, domain.Bookmark{
			URL:         b.Href,
			Title:       b.Description,
			Description: strings.TrimSpace(html.UnescapeString(stripTags.Sanitize(b.Extended))),
			Tags:        strings.Fields(b.Tags),
			ReadLater:   b.Toread == "yes",
			CreatedAt:   b.Time,
			UpdatedAt:   b.Time,
		})
	}
	return bookmarks, nil
}

// ImportFile reads fileName and adds its bookmarks for userID. It returns how many were stored.
func ImportFile(ctx context.Context, target Target, fileName, userID string, format convert.Format, log logger.Logger) (int, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return 0, err
	}
	var bookmarks []domain.Bookmark
	if format == FormatPinboard {
		bookmarks, err = ParsePinboard(data)
	} else {
		bookmarks, err = convert.Import(format, data, time.Now())
	}
	if err != nil {
		return 0, err
	}
	if len(bookmarks) == 0 {
		return 0, apperrors.Validation("no bookmarks found in file")
	}
	log.Info("Importing bookmarks", logger.Int("count", len(bookmarks)), logger.String("user", userID), logger.String("file", fileName))
	created, err := target.BatchAdd(ctx, userID, bookmarks)
	return len(created), err
}
