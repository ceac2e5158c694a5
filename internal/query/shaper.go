package query

import (
	"strings"

	"aggregat4/linkbook/internal/domain"
)

type Page struct {
	Items      []domain.Bookmark `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
	HasMore    bool              `json:"hasMore"`
	Limit      int               `json:"limit"`
}

// Shape filters a page returned by the store. hasMore is true when the store filled the page;
// the next cursor continues after the last stored document, filtered out or not.
func Shape(raw []domain.Bookmark, p Params) Page {
	page := Page{Items: Apply(raw, p), Limit: p.Limit}
	if p.Limit > 0 && len(raw) == p.Limit {
		page.HasMore = true
		page.NextCursor = EncodeCursor(p.CursorFor(raw[len(raw)-1]))
	}
	return page
}

// Apply runs the folder, tag and search filters of p in that order.
func Apply(bookmarks []domain.Bookmark, p Params) []domain.Bookmark {
	result := ByFolder(bookmarks, p.Folder)
	result = ByTags(result, p.Tags)
	return BySearch(result, p.Search)
}

// ByFolder keeps bookmarks in folder. A nil folder keeps everything.
func ByFolder(bookmarks []domain.Bookmark, folder *string) []domain.Bookmark {
	if folder == nil {
		return keep(bookmarks, func(domain.Bookmark) bool { return true })
	}
	return keep(bookmarks, func(b domain.Bookmark) bool {
		return b.Folder != nil && *b.Folder == *folder
	})
}

// ByTags keeps bookmarks carrying at least one of tags.
func ByTags(bookmarks []domain.Bookmark, tags []string) []domain.Bookmark {
	if len(tags) == 0 {
		return keep(bookmarks, func(domain.Bookmark) bool { return true })
	}
	return keep(bookmarks, func(b domain.Bookmark) bool {
		for _, t := range tags {
			if b.HasTag(t) {
				return true
			}
		}
		return false
	})
}

// BySearch keeps bookmarks whose title, description, url or one of its tags contains search,
// ignoring case.
func BySearch(bookmarks []domain.Bookmark, search string) []domain.Bookmark {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return keep(bookmarks, func(domain.Bookmark) bool { return true })
	}
	return keep(bookmarks, func(b domain.Bookmark) bool {
		if strings.Contains(strings.ToLower(b.Title), needle) ||
			strings.Contains(strings.ToLower(b.Description), needle) ||
			strings.Contains(strings.ToLower(b.URL), needle) {
			return true
		}
		for _, t := range b.Tags {
			if strings.Contains(strings.ToLower(t), needle) {
				return true
			}
		}
		return false
	})
}

func keep(bookmarks []domain.Bookmark, pred func(domain.Bookmark) bool) []domain.Bookmark {
	result := make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if pred(b) {
			result = append(result, b)
		}
	}
	return result
}
