package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/batch"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/query"
)

const bookmarkColumns = `id, user_id, url, title, description, tags, folder, favicon, metadata, readlater, visit_count, last_visited, created, updated`

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (domain.Bookmark, error) {
	var b domain.Bookmark
	var tags string
	var folder, favicon, metadata sql.NullString
	var readlater int
	var lastVisited sql.NullInt64
	var created, updated int64
	err := row.Scan(&b.ID, &b.UserID, &b.URL, &b.Title, &b.Description, &tags, &folder, &favicon, &metadata, &readlater, &b.VisitCount, &lastVisited, &created, &updated)
	if err != nil {
		return b, err
	}
	if err = json.Unmarshal([]byte(tags), &b.Tags); err != nil || b.Tags == nil {
		b.Tags = []string{}
	}
	if folder.Valid {
		b.Folder = &folder.String
	}
	if favicon.Valid {
		b.Favicon = &favicon.String
	}
	if metadata.Valid && metadata.String != "" {
		var md domain.Metadata
		if json.Unmarshal([]byte(metadata.String), &md) == nil {
			b.Metadata = &md
		}
	}
	b.ReadLater = readlater == 1
	if lastVisited.Valid {
		t := time.UnixMilli(lastVisited.Int64).UTC()
		b.LastVisited = &t
	}
	b.CreatedAt = time.UnixMilli(created).UTC()
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

func scanBookmarks(rows *sql.Rows) ([]domain.Bookmark, error) {
	defer rows.Close()
	bookmarks := make([]domain.Bookmark, 0)
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

// bookmarkArgs returns the column values of b in bookmarkColumns order.
func bookmarkArgs(b domain.Bookmark) ([]any, error) {
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJson, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	var metadata sql.NullString
	if b.Metadata != nil {
		data, err := json.Marshal(b.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}
	var lastVisited sql.NullInt64
	if b.LastVisited != nil {
		lastVisited = sql.NullInt64{Int64: b.LastVisited.UnixMilli(), Valid: true}
	}
	readlater := 0
	if b.ReadLater {
		readlater = 1
	}
	return []any{b.ID, b.UserID, b.URL, b.Title, b.Description, string(tagsJson), b.Folder, b.Favicon, metadata, readlater, b.VisitCount, lastVisited, b.CreatedAt.UnixMilli(), b.UpdatedAt.UnixMilli()}, nil
}

var sortColumns = map[query.SortKey]string{
	query.SortCreatedAt:   "created",
	query.SortUpdatedAt:   "updated",
	query.SortTitle:       "title",
	query.SortVisitCount:  "visit_count",
	query.SortLastVisited: "COALESCE(last_visited, 0)",
}

// QueryBookmarks returns one page of a user's bookmarks in the requested order. Paging uses the
// sort value and id of the last row seen, the scrolling cursor approach from
// https://www2.sqlite.org/cvstrac/wiki?p=ScrollingCursor, with the id breaking ties.
func (store *Store) QueryBookmarks(ctx context.Context, q query.StoreQuery) ([]domain.Bookmark, error) {
	column, ok := sortColumns[q.Sort]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported sort key %q", q.Sort))
	}
	order, cmp := "DESC", "<"
	if q.Direction == query.Asc {
		order, cmp = "ASC", ">"
	}
	var sb strings.Builder
	args := []any{q.UserID}
	sb.WriteString("SELECT " + bookmarkColumns + " FROM bookmarks WHERE user_id = ?")
	if q.Folder != nil {
		sb.WriteString(" AND folder = ?")
		args = append(args, *q.Folder)
	}
	if q.After != nil {
		var value any = q.After.Number
		if !q.Sort.Numeric() {
			value = q.After.Text
		}
		fmt.Fprintf(&sb, " AND (%s %s ? OR (%s = ? AND id %s ?))", column, cmp, column, cmp)
		args = append(args, value, value, q.After.ID)
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, id %s LIMIT ?", column, order, order)
	args = append(args, q.Limit)

	rows, err := store.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return scanBookmarks(rows)
}

// AllBookmarks returns every bookmark of userID, newest first.
func (store *Store) AllBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	rows, err := store.db.QueryContext(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks WHERE user_id = ? ORDER BY created DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	return scanBookmarks(rows)
}

func (store *Store) GetBookmark(ctx context.Context, id string) (domain.Bookmark, error) {
	b, err := scanBookmark(store.db.QueryRowContext(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bookmark{}, apperrors.NotFound("bookmark not found")
	}
	return b, err
}

// InsertBookmark stores b under a new id and returns it.
func (store *Store) InsertBookmark(ctx context.Context, b domain.Bookmark) (domain.Bookmark, error) {
	created, err := store.CommitAdds(ctx, []domain.Bookmark{b})
	if err != nil {
		return domain.Bookmark{}, err
	}
	return created[0], nil
}

// UpdateBookmark overwrites every mutable column of the bookmark with b's id.
func (store *Store) UpdateBookmark(ctx context.Context, b domain.Bookmark) error {
	args, err := bookmarkArgs(b)
	if err != nil {
		return err
	}
	// skip id and user_id, which never change
	args = append(args[2:], b.ID)
	result, err := store.db.ExecContext(ctx, `
		UPDATE bookmarks
		SET url = ?, title = ?, description = ?, tags = ?, folder = ?, favicon = ?, metadata = ?, readlater = ?, visit_count = ?, last_visited = ?, created = ?, updated = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("bookmark not found")
	}
	return store.touchUser(ctx, store.db, b.UserID)
}

func (store *Store) DeleteBookmark(ctx context.Context, id string) error {
	result, err := store.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("bookmark not found")
	}
	return nil
}

// RecordVisit increments the visit count and sets the last visit time.
func (store *Store) RecordVisit(ctx context.Context, id string, at time.Time) (domain.Bookmark, error) {
	result, err := store.db.ExecContext(ctx,
		"UPDATE bookmarks SET visit_count = visit_count + 1, last_visited = ?, updated = ? WHERE id = ?",
		at.UnixMilli(), at.UnixMilli(), id)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return domain.Bookmark{}, apperrors.NotFound("bookmark not found")
	}
	return store.GetBookmark(ctx, id)
}

// CommitAdds inserts bookmarks in one transaction and returns them with their new ids.
func (store *Store) CommitAdds(ctx context.Context, bookmarks []domain.Bookmark) ([]domain.Bookmark, error) {
	if len(bookmarks) > batch.MaxChunkSize {
		return nil, apperrors.Validation(fmt.Sprintf("at most %d bookmarks can be written at once", batch.MaxChunkSize))
	}
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO bookmarks ("+bookmarkColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	users := make(map[string]bool)
	created := make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if !users[b.UserID] {
			if err = store.ensureUser(ctx, tx, b.UserID); err != nil {
				return nil, err
			}
			users[b.UserID] = true
		}
		if b.ID, err = newBookmarkId(); err != nil {
			return nil, err
		}
		args, err := bookmarkArgs(b)
		if err != nil {
			return nil, err
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return nil, err
		}
		created = append(created, b)
	}
	for userID := range users {
		if err = store.touchUser(ctx, tx, userID); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	if len(created) > 1 {
		store.Log.Debug("Imported bookmarks", logger.Int("count", len(created)))
	}
	return created, nil
}

// CommitDeletes removes the listed bookmarks of userID in one transaction. Ids belonging to
// other users are ignored.
func (store *Store) CommitDeletes(ctx context.Context, userID string, ids []string) error {
	if len(ids) > batch.MaxChunkSize {
		return apperrors.Validation(fmt.Sprintf("at most %d bookmarks can be deleted at once", batch.MaxChunkSize))
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM bookmarks WHERE user_id = ? AND id IN ("+placeholders+")", args...); err != nil {
		return err
	}
	if err = store.touchUser(ctx, tx, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// DistinctTags lists every tag used by userID, sorted.
func (store *Store) DistinctTags(ctx context.Context, userID string) ([]string, error) {
	return store.distinct(ctx, `
		SELECT DISTINCT j.value
		FROM bookmarks b, json_each(b.tags) j
		WHERE b.user_id = ? AND j.value <> ''
		ORDER BY j.value`, userID)
}

// DistinctFolders lists every folder used by userID, sorted.
func (store *Store) DistinctFolders(ctx context.Context, userID string) ([]string, error) {
	return store.distinct(ctx, `
		SELECT DISTINCT folder
		FROM bookmarks
		WHERE user_id = ? AND folder IS NOT NULL AND folder <> ''
		ORDER BY folder`, userID)
}

func (store *Store) distinct(ctx context.Context, sqlQuery string, userID string) ([]string, error) {
	rows, err := store.db.QueryContext(ctx, sqlQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
