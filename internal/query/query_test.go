package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
)

func folder(name string) *string {
	return &name
}

func fixtures() []domain.Bookmark {
	return []domain.Bookmark{
		{ID: "1", Title: "Go blog", URL: "https://go.dev/blog", Tags: []string{"go", "blog"}, Folder: folder("Dev")},
		{ID: "2", Title: "Rust book", URL: "https://doc.rust-lang.org/book", Tags: []string{"rust"}, Folder: folder("Dev")},
		{ID: "3", Title: "Recipes", Description: "Pasta with GO-karts", URL: "https://food.example", Tags: []string{"food"}},
		{ID: "4", Title: "News", URL: "https://news.example", Tags: []string{"Golang-weekly"}, Folder: folder("Reading")},
		{ID: "5", Title: "Untagged", URL: "https://plain.example", Folder: folder("Dev")},
	}
}

func ids(bookmarks []domain.Bookmark) []string {
	result := make([]string, 0, len(bookmarks))
	for _, b := range bookmarks {
		result = append(result, b.ID)
	}
	return result
}

func TestByTagsMatchesIntersection(t *testing.T) {
	assert.Equal(t, []string{"2"}, ids(ByTags(fixtures(), []string{"rust"})))
	assert.Equal(t, []string{"1", "3"}, ids(ByTags(fixtures(), []string{"food", "go"})))
	assert.Empty(t, ByTags(fixtures(), []string{"Go"}))
	assert.Len(t, ByTags(fixtures(), nil), 5)
}

func TestByFolder(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "5"}, ids(ByFolder(fixtures(), folder("Dev"))))
	assert.Empty(t, ByFolder(fixtures(), folder("dev")))
	assert.Len(t, ByFolder(fixtures(), nil), 5)
}

func TestBySearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	// title "Go blog", description "GO-karts", url go.dev, tag Golang-weekly
	assert.Equal(t, []string{"1", "3", "4"}, ids(BySearch(fixtures(), "  go ")))
	assert.Equal(t, []string{"2"}, ids(BySearch(fixtures(), "RUST-LANG")))
	assert.Empty(t, BySearch(fixtures(), "nothing matches"))
}

func TestFolderAndSearchFiltersCommute(t *testing.T) {
	for _, f := range []*string{nil, folder("Dev"), folder("Reading")} {
		for _, search := range []string{"", "go", "book", "example"} {
			folderFirst := BySearch(ByFolder(fixtures(), f), search)
			searchFirst := ByFolder(BySearch(fixtures(), search), f)
			assert.Equal(t, ids(folderFirst), ids(searchFirst), "folder %v search %q", f, search)
		}
	}
}

func TestApplyCombinesFilters(t *testing.T) {
	p := Params{Folder: folder("Dev"), Tags: []string{"go", "rust"}, Search: "book"}
	assert.Equal(t, []string{"2"}, ids(Apply(fixtures(), p)))
}

func TestNormalizeDefaultsAndLimits(t *testing.T) {
	p := Params{Tags: []string{" a ", ""}, Folder: folder("  ")}
	require.NoError(t, p.Normalize(20, 100))
	assert.Equal(t, SortCreatedAt, p.Sort)
	assert.Equal(t, Desc, p.Direction)
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, []string{"a"}, p.Tags)
	assert.Nil(t, p.Folder)

	p = Params{Limit: 1000, Direction: "ASC", Sort: SortTitle}
	require.NoError(t, p.Normalize(20, 100))
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, Asc, p.Direction)

	p = Params{Sort: "random"}
	assert.True(t, apperrors.Is(p.Normalize(20, 100), apperrors.ErrValidation))
	p = Params{Direction: "sideways"}
	assert.True(t, apperrors.Is(p.Normalize(20, 100), apperrors.ErrValidation))
}

func TestShapeHasMoreHeuristic(t *testing.T) {
	p := Params{Limit: 5, Tags: []string{"go"}}
	require.NoError(t, p.Normalize(20, 100))

	full := Shape(fixtures(), p)
	assert.True(t, full.HasMore)
	assert.Equal(t, []string{"1"}, ids(full.Items))
	require.NotEmpty(t, full.NextCursor)
	c, err := DecodeCursor(full.NextCursor)
	require.NoError(t, err)
	// the cursor continues after the last stored document, even though it was filtered out
	assert.Equal(t, "5", c.ID)

	short := Shape(fixtures()[:4], p)
	assert.False(t, short.HasMore)
	assert.Empty(t, short.NextCursor)
}

func TestCursorRoundTripAndFingerprint(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	p := Params{Folder: folder("Dev"), Tags: []string{"b", "a"}}
	require.NoError(t, p.Normalize(20, 100))

	p.Cursor = EncodeCursor(p.CursorFor(domain.Bookmark{ID: "abc", CreatedAt: created}))
	after, err := p.After()
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, "abc", after.ID)
	assert.Equal(t, created.UnixMilli(), after.Number)

	// tag order does not matter
	same := p
	same.Tags = []string{"a", "b"}
	after, err = same.After()
	require.NoError(t, err)
	assert.NotNil(t, after)

	for name, changed := range map[string]func(*Params){
		"folder":    func(q *Params) { q.Folder = folder("Other") },
		"search":    func(q *Params) { q.Search = "x" },
		"sort":      func(q *Params) { q.Sort = SortTitle },
		"direction": func(q *Params) { q.Direction = Asc },
		"tags":      func(q *Params) { q.Tags = []string{"a"} },
	} {
		q := p
		changed(&q)
		after, err := q.After()
		require.NoError(t, err, name)
		assert.Nil(t, after, "changing %s resets to the first page", name)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, s := range []string{"%%%", "bm90IGpzb24", EncodeCursor(Cursor{})} {
		_, err := DecodeCursor(s)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), s)
	}
	p := Params{Cursor: "%%%"}
	_, err := p.StoreQuery("u")
	assert.Error(t, err)
}

func TestCursorForTitleSort(t *testing.T) {
	p := Params{Sort: SortTitle}
	require.NoError(t, p.Normalize(20, 100))
	c := p.CursorFor(domain.Bookmark{ID: "z", Title: "Zebra"})
	assert.Equal(t, "Zebra", c.Text)
	assert.Zero(t, c.Number)
}

func TestSortNumber(t *testing.T) {
	visited := time.UnixMilli(1_700_000_000_123)
	b := domain.Bookmark{VisitCount: 4, LastVisited: &visited, CreatedAt: time.UnixMilli(1), UpdatedAt: time.UnixMilli(2)}
	assert.Equal(t, int64(1), SortNumber(b, SortCreatedAt))
	assert.Equal(t, int64(2), SortNumber(b, SortUpdatedAt))
	assert.Equal(t, int64(4), SortNumber(b, SortVisitCount))
	assert.Equal(t, int64(1_700_000_000_123), SortNumber(b, SortLastVisited))
	assert.Equal(t, int64(0), SortNumber(domain.Bookmark{}, SortLastVisited))
	assert.Equal(t, fmt.Sprint(SortTitle), "title")
	assert.False(t, SortTitle.Numeric())
}
