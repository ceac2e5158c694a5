package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"aggregat4/linkbook/internal/domain"
)

// GetSettings loads the settings of userID. found is false when none were saved yet.
func (store *Store) GetSettings(ctx context.Context, userID string) (settings domain.UserSettings, found bool, err error) {
	var data string
	err = store.db.QueryRowContext(ctx, "SELECT data FROM user_settings WHERE user_id = ?", userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserSettings{}, false, nil
	}
	if err != nil {
		return domain.UserSettings{}, false, err
	}
	if err = json.Unmarshal([]byte(data), &settings); err != nil {
		return domain.UserSettings{}, false, err
	}
	settings.UserID = userID
	if settings.Sidebar.Favorites == nil {
		settings.Sidebar.Favorites = []string{}
	}
	return settings, true, nil
}

// SaveSettings creates or replaces the settings record of settings.UserID.
func (store *Store) SaveSettings(ctx context.Context, settings domain.UserSettings) error {
	if err := store.EnsureUser(ctx, settings.UserID); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, data, created, updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated = excluded.updated`,
		settings.UserID, string(data), settings.CreatedAt.UnixMilli(), settings.UpdatedAt.UnixMilli())
	return err
}
