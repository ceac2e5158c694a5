// Package batch applies bulk adds and deletes in chunks small enough for one atomic commit.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/urlnorm"
)

// MaxChunkSize is the largest number of operations the store accepts in one commit.
const MaxChunkSize = 500

// Writer commits one chunk atomically: either every item is written or none is.
type Writer interface {
	CommitAdds(ctx context.Context, bookmarks []domain.Bookmark) ([]domain.Bookmark, error)
	CommitDeletes(ctx context.Context, userID string, ids []string) error
}

type Mutator struct {
	writer    Writer
	chunkSize int
	now       cache.Clock
	log       logger.Logger
}

// NewMutator returns a Mutator committing at most chunkSize items at a time. Values outside
// 1..MaxChunkSize are clamped.
func NewMutator(writer Writer, chunkSize int, now cache.Clock, log logger.Logger) *Mutator {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	if now == nil {
		now = time.Now
	}
	return &Mutator{writer: writer, chunkSize: chunkSize, now: now, log: log}
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = MaxChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		chunks = append(chunks, items[start:min(start+size, len(items))])
	}
	return chunks
}

// Add writes bookmarks chunk by chunk and returns what was created. Items without a URL or an
// owner are skipped. When a chunk fails, the items of the chunks committed before it are
// returned together with the error.
func (m *Mutator) Add(ctx context.Context, bookmarks []domain.Bookmark) ([]domain.Bookmark, error) {
	if len(bookmarks) == 0 {
		return nil, apperrors.Validation("bookmarks are required")
	}
	now := m.now()
	valid := make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if strings.TrimSpace(b.URL) == "" || b.UserID == "" {
			continue
		}
		valid = append(valid, withDefaults(b, now))
	}
	if skipped := len(bookmarks) - len(valid); skipped > 0 {
		m.log.Info("skipping bookmarks without url or owner", logger.Int("skipped", skipped))
	}

	created := make([]domain.Bookmark, 0, len(valid))
	for i, chunk := range Chunk(valid, m.chunkSize) {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		committed, err := m.writer.CommitAdds(ctx, chunk)
		if err != nil {
			return created, fmt.Errorf("committing bookmark chunk %d (%d items): %w", i+1, len(chunk), err)
		}
		created = append(created, committed...)
		m.log.Debug("committed bookmark chunk", logger.Int("chunk", i+1), logger.Int("size", len(chunk)))
	}
	return created, nil
}

// Delete removes the given bookmarks of userID chunk by chunk.
func (m *Mutator) Delete(ctx context.Context, userID string, ids []string) (bool, error) {
	if userID == "" {
		return false, apperrors.Validation("user id is required")
	}
	if len(ids) == 0 {
		return false, apperrors.Validation("bookmark ids are required")
	}
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			valid = append(valid, id)
		}
	}
	for i, chunk := range Chunk(valid, m.chunkSize) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := m.writer.CommitDeletes(ctx, userID, chunk); err != nil {
			return false, fmt.Errorf("deleting bookmark chunk %d (%d items): %w", i+1, len(chunk), err)
		}
	}
	return true, nil
}

func withDefaults(b domain.Bookmark, now time.Time) domain.Bookmark {
	b.ID = ""
	b.URL = urlnorm.EnsureScheme(b.URL)
	if strings.TrimSpace(b.Title) == "" {
		b.Title = "Untitled"
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	b.VisitCount = 0
	b.LastVisited = nil
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	return b
}
