package repository

import (
	"context"
	"database/sql"
	"time"

	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
)

// FindReadLaterBookmarksWithContent returns the read later bookmarks of userId whose content
// was downloaded, or whose download failed at least maxDownloadAttempts times.
func (store *Store) FindReadLaterBookmarksWithContent(ctx context.Context, userId string, maxDownloadAttempts int) ([]domain.ReadLaterBookmarkWithContent, error) {
	rows, err := store.db.QueryContext(ctx,
		`
		SELECT b.url, rl.retrieval_status, rl.retrieval_time, rl.title, rl.byline, rl.content, rl.content_type
		FROM read_later rl, bookmarks b
		WHERE rl.user_id = ?
		AND rl.bookmark_id = b.id
		AND ((rl.retrieval_status = 0 AND rl.content IS NOT NULL) OR rl.retrieval_attempt_count >= ?)
		ORDER BY rl.retrieval_time DESC
		`, userId, maxDownloadAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]domain.ReadLaterBookmarkWithContent, 0)
	for rows.Next() {
		var url string
		var retrievalStatus int
		var retrievalTimeOrNull sql.NullInt64
		var title, byline, content, contentType sql.NullString
		if err = rows.Scan(&url, &retrievalStatus, &retrievalTimeOrNull, &title, &byline, &content, &contentType); err != nil {
			return nil, err
		}
		var retrievalTime time.Time
		if retrievalTimeOrNull.Valid {
			retrievalTime = time.UnixMilli(retrievalTimeOrNull.Int64).UTC()
		}
		result = append(result, domain.ReadLaterBookmarkWithContent{
			Url:                   url,
			SuccessfullyRetrieved: retrievalStatus == 0 && content.Valid,
			Title:                 title.String,
			Content:               content.String,
			Byline:                byline.String,
			RetrievalTime:         retrievalTime,
			ContentType:           contentType.String,
		})
	}
	return result, rows.Err()
}

// PruneFeedCandidates drops downloaded content of read later bookmarks created before the cutoff.
func (store *Store) PruneFeedCandidates(ctx context.Context, cutoffDate time.Time) error {
	_, err := store.db.ExecContext(ctx,
		`
		DELETE FROM read_later
		WHERE bookmark_id IN (
			SELECT b.id
			FROM bookmarks b
			WHERE b.readlater = 1
			AND b.created < ?
		)
		`, cutoffDate.UnixMilli(),
	)
	return err
}

// GetBookmarksToDownload returns read later entries without content that have been attempted
// fewer than maxDownloadAttempts times, at most maxBookmarksToDownload of them.
func (store *Store) GetBookmarksToDownload(ctx context.Context, maxDownloadAttempts, maxBookmarksToDownload int) ([]domain.ReadLaterBookmark, error) {
	rows, err := store.db.QueryContext(ctx,
		`
		SELECT rl.id, b.url, rl.retrieval_attempt_count
		FROM bookmarks b, read_later rl
		WHERE b.id = rl.bookmark_id
		AND rl.content IS NULL
		AND rl.retrieval_attempt_count < ?
		LIMIT ?
		`,
		maxDownloadAttempts, maxBookmarksToDownload,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookmarksToDownload := make([]domain.ReadLaterBookmark, 0)
	for rows.Next() {
		var readLater domain.ReadLaterBookmark
		if err := rows.Scan(&readLater.Id, &readLater.Url, &readLater.AttemptCount); err != nil {
			return nil, err
		}
		bookmarksToDownload = append(bookmarksToDownload, readLater)
	}
	return bookmarksToDownload, rows.Err()
}

func (store *Store) MarkBookmarkAsFailedToDownload(ctx context.Context, readLaterId uint64, attempts int) error {
	_, err := store.db.ExecContext(ctx,
		`
		UPDATE read_later
		SET retrieval_status = 1, retrieval_attempt_count = ?
		WHERE id = ?
		`,
		attempts, readLaterId,
	)
	return err
}

// SaveBookmarkContent stores downloaded content and marks the entry as successfully retrieved.
func (store *Store) SaveBookmarkContent(ctx context.Context, readLaterId uint64, downloaded domain.ReadLaterBookmarkWithContent, content string, attempts int) error {
	_, err := store.db.ExecContext(ctx,
		`
		UPDATE read_later
		SET retrieval_status = 0, retrieval_time = ?, title = ?, byline = ?, content = ?, retrieval_attempt_count = ?, content_type = ?
		WHERE id = ?
		`,
		downloaded.RetrievalTime.UnixMilli(), downloaded.Title, downloaded.Byline, content, attempts, downloaded.ContentType, readLaterId,
	)
	return err
}

// FindFeedCandidates finds bookmarks marked read later after the cutoff that are not in the
// read_later table yet.
func (store *Store) FindFeedCandidates(ctx context.Context, cutoffDate time.Time) ([]domain.FeedCandidate, error) {
	rows, err := store.db.QueryContext(ctx,
		`
		SELECT b.id, b.user_id
		FROM bookmarks b LEFT JOIN read_later rl ON b.id = rl.bookmark_id
		WHERE b.readlater = 1
		AND b.created > ?
		AND rl.id IS NULL
		`, cutoffDate.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	feedCandidates := make([]domain.FeedCandidate, 0)
	for rows.Next() {
		var candidate domain.FeedCandidate
		if err = rows.Scan(&candidate.BookmarkId, &candidate.UserId); err != nil {
			return nil, err
		}
		store.Log.Debug("Adding new feed candidate", logger.String("bookmark", candidate.BookmarkId))
		feedCandidates = append(feedCandidates, candidate)
	}
	return feedCandidates, rows.Err()
}

func (store *Store) SaveFeedCandidate(ctx context.Context, feedCandidate domain.FeedCandidate) error {
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO read_later (user_id, bookmark_id, retrieval_attempt_count, retrieval_status) VALUES (?, ?, ?, ?)`,
		feedCandidate.UserId, feedCandidate.BookmarkId, 0, 0)
	return err
}
