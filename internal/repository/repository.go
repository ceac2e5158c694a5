package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/pkg/migrations"
)

// Store persists users, bookmarks, read later content and settings in sqlite. The zero value is
// ready for InitAndVerifyDb; Log and Now are optional.
type Store struct {
	Log logger.Logger
	Now func() time.Time

	db *sql.DB
}

func (store *Store) Close() {
	if store.db != nil {
		store.db.Close()
	}
}

func (store *Store) InitAndVerifyDb(dbFilename string) error {
	if store.Log == nil {
		store.Log = logger.NewNop()
	}
	if store.Now == nil {
		store.Now = time.Now
	}
	var err error
	store.db, err = sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbFilename))
	if err != nil {
		return err
	}
	return migrations.MigrateSchema(store.db, bookmarkMigrations, store.Log)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func newBookmarkId() (string, error) {
	return gonanoid.New()
}

// EnsureUser creates the user row for userID if it does not exist yet.
func (store *Store) EnsureUser(ctx context.Context, userID string) error {
	return store.ensureUser(ctx, store.db, userID)
}

func (store *Store) ensureUser(ctx context.Context, db execer, userID string) error {
	if userID == "" {
		return apperrors.Validation("user id is required")
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO users (id, last_update, feed_id) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
		userID, store.Now().UnixMilli(), uuid.New().String())
	return err
}

func (store *Store) touchUser(ctx context.Context, db execer, userID string) error {
	_, err := db.ExecContext(ctx, "UPDATE users SET last_update = ? WHERE id = ?", store.Now().UnixMilli(), userID)
	return err
}

func (store *Store) GetLastModifiedDate(ctx context.Context, userID string) (time.Time, error) {
	var updated int64
	err := store.db.QueryRowContext(ctx, "SELECT last_update FROM users WHERE id = ?", userID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(updated), nil
}

func (store *Store) GetOrCreateFeedIdForUser(ctx context.Context, userID string) (string, error) {
	if err := store.EnsureUser(ctx, userID); err != nil {
		return "", err
	}
	var feedId sql.NullString
	err := store.db.QueryRowContext(ctx, "SELECT feed_id FROM users WHERE id = ?", userID).Scan(&feedId)
	if err != nil {
		return "", err
	}
	if feedId.Valid && feedId.String != "" {
		return feedId.String, nil
	}
	newFeedId := uuid.New().String()
	if _, err = store.db.ExecContext(ctx, "UPDATE users SET feed_id = ? WHERE id = ?", newFeedId, userID); err != nil {
		return "", err
	}
	return newFeedId, nil
}

func (store *Store) FindUserIdForFeedId(ctx context.Context, feedId string) (string, error) {
	var userID string
	err := store.db.QueryRowContext(ctx, "SELECT id FROM users WHERE feed_id = ?", feedId).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("feed not found")
	}
	return userID, err
}
