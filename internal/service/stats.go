package service

import (
	"context"
	"math"
	"sort"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/urlnorm"
)

const recentBookmarks = 5

type Usage struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type Stats struct {
	TotalBookmarks  int               `json:"totalBookmarks"`
	ReadLater       int               `json:"readLater"`
	TotalVisits     int               `json:"totalVisits"`
	TagStats        []Usage           `json:"tagStats"`
	FolderStats     []Usage           `json:"folderStats"`
	DomainStats     []Usage           `json:"domainStats"`
	RecentBookmarks []domain.Bookmark `json:"recentBookmarks"`
}

// Stats summarizes the collection of userID: usage per tag, folder and domain, most used first,
// and the newest bookmarks.
func (s *Bookmarks) Stats(ctx context.Context, userID string) (Stats, error) {
	if userID == "" {
		return Stats{}, apperrors.Validation("user id is required")
	}
	bookmarks, err := s.store.AllBookmarks(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(bookmarks), nil
}

// computeStats expects bookmarks newest first.
func computeStats(bookmarks []domain.Bookmark) Stats {
	tags := newCounter()
	folders := newCounter()
	domains := newCounter()
	stats := Stats{TotalBookmarks: len(bookmarks)}
	for _, b := range bookmarks {
		for _, t := range b.Tags {
			tags.add(t)
		}
		if b.Folder != nil {
			folders.add(*b.Folder)
		}
		if host := urlnorm.Domain(b.URL); host != "" {
			domains.add(host)
		}
		if b.ReadLater {
			stats.ReadLater++
		}
		stats.TotalVisits += b.VisitCount
	}
	stats.TagStats = tags.usage(len(bookmarks))
	stats.FolderStats = folders.usage(len(bookmarks))
	stats.DomainStats = domains.usage(len(bookmarks))
	stats.RecentBookmarks = bookmarks[:min(recentBookmarks, len(bookmarks))]
	return stats
}

type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(name string) {
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// usage sorts by count, highest first; ties keep first-seen order.
func (c *counter) usage(total int) []Usage {
	result := make([]Usage, 0, len(c.order))
	for _, name := range c.order {
		count := c.counts[name]
		result = append(result, Usage{Name: name, Count: count, Percentage: percentage(count, total)})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

func percentage(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}
