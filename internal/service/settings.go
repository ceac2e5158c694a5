package service

import (
	"context"
	"time"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/validation"
)

// SettingsStore is implemented by *repository.Store.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (domain.UserSettings, bool, error)
	SaveSettings(ctx context.Context, settings domain.UserSettings) error
}

type Settings struct {
	store     SettingsStore
	validator *validation.Validator
	now       cache.Clock
	log       logger.Logger
}

func NewSettings(store SettingsStore, now cache.Clock, log logger.Logger) *Settings {
	if now == nil {
		now = time.Now
	}
	return &Settings{store: store, validator: validation.New(), now: now, log: log}
}

// Get returns the settings of userID, creating the defaults on first access.
func (s *Settings) Get(ctx context.Context, userID string) (domain.UserSettings, error) {
	if userID == "" {
		return domain.UserSettings{}, apperrors.Validation("user id is required")
	}
	settings, found, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if found {
		return settings, nil
	}
	settings = domain.DefaultUserSettings(userID, s.now())
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return domain.UserSettings{}, err
	}
	s.log.Debug("Created default settings", logger.String("user", userID))
	return settings, nil
}

// Update merges patch into the settings of userID. Keys missing from patch keep their values;
// a user without settings starts from the defaults.
func (s *Settings) Update(ctx context.Context, userID string, patch domain.SettingsPatch) (domain.UserSettings, error) {
	if err := s.validator.Validate(patch); err != nil {
		return domain.UserSettings{}, err
	}
	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	updated := patch.Apply(current)
	updated.UpdatedAt = s.now()
	if err := s.store.SaveSettings(ctx, updated); err != nil {
		return domain.UserSettings{}, err
	}
	return updated, nil
}
