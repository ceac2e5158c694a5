// Package config reads the configuration from the environment. A .env file in the working
// directory is loaded first when present.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/aggregat4/go-baselib/env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"aggregat4/linkbook/internal/domain"
)

const prefix = "LINKBOOK_"

// LoadDotEnv loads .env files; missing files are not an error.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load builds the configuration, falling back to domain.DefaultConfiguration for every unset
// variable. The session key is random per process unless configured.
func Load() domain.Configuration {
	d := domain.DefaultConfiguration()
	return domain.Configuration{
		DBFilename:                env.GetStringFromEnv(prefix+"DB_FILENAME", d.DBFilename),
		BaseUrl:                   env.GetStringFromEnv(prefix+"BASE_URL", d.BaseUrl),
		ServerPort:                env.GetIntFromEnv(prefix+"SERVER_PORT", d.ServerPort),
		ServerReadTimeoutSeconds:  env.GetIntFromEnv(prefix+"SERVER_READ_TIMEOUT_SECONDS", d.ServerReadTimeoutSeconds),
		ServerWriteTimeoutSeconds: env.GetIntFromEnv(prefix+"SERVER_WRITE_TIMEOUT_SECONDS", d.ServerWriteTimeoutSeconds),
		SessionCookieSecretKey:    env.GetStringFromEnv(prefix+"SESSION_COOKIE_SECRET_KEY", uuid.New().String()),

		LogLevel:  env.GetStringFromEnv(prefix+"LOG_LEVEL", d.LogLevel),
		PrettyLog: isTrue(env.GetStringFromEnv(prefix+"LOG_PRETTY", "false")),

		BookmarksPageSize:    env.GetIntFromEnv(prefix+"PAGE_SIZE", d.BookmarksPageSize),
		BookmarksMaxPageSize: env.GetIntFromEnv(prefix+"MAX_PAGE_SIZE", d.BookmarksMaxPageSize),
		BatchChunkSize:       env.GetIntFromEnv(prefix+"BATCH_CHUNK_SIZE", d.BatchChunkSize),
		TagsCacheTTLSeconds:  env.GetIntFromEnv(prefix+"TAGS_CACHE_TTL_SECONDS", d.TagsCacheTTLSeconds),

		MetadataTimeoutSeconds:   env.GetIntFromEnv(prefix+"METADATA_TIMEOUT_SECONDS", d.MetadataTimeoutSeconds),
		MetadataCacheTTLSeconds:  env.GetIntFromEnv(prefix+"METADATA_CACHE_TTL_SECONDS", d.MetadataCacheTTLSeconds),
		MetadataMaxBodyBytes:     env.GetIntFromEnv(prefix+"METADATA_MAX_BODY_BYTES", d.MetadataMaxBodyBytes),
		MetadataUserAgent:        env.GetStringFromEnv(prefix+"METADATA_USER_AGENT", d.MetadataUserAgent),
		PreloadBatchSize:         env.GetIntFromEnv(prefix+"PRELOAD_BATCH_SIZE", d.PreloadBatchSize),
		PreloadPauseMilliseconds: env.GetIntFromEnv(prefix+"PRELOAD_PAUSE_MILLISECONDS", d.PreloadPauseMilliseconds),
		PreloadMaxUrls:           env.GetIntFromEnv(prefix+"PRELOAD_MAX_URLS", d.PreloadMaxUrls),

		RedisAddr:     env.GetStringFromEnv(prefix+"REDIS_ADDR", ""),
		RedisPassword: env.GetStringFromEnv(prefix+"REDIS_PASSWORD", ""),
		RedisDB:       env.GetIntFromEnv(prefix+"REDIS_DB", 0),

		MaxContentDownloadAttempts:       env.GetIntFromEnv(prefix+"MAX_CONTENT_DOWNLOAD_ATTEMPTS", d.MaxContentDownloadAttempts),
		MaxContentDownloadTimeoutSeconds: env.GetIntFromEnv(prefix+"MAX_CONTENT_DOWNLOAD_TIMEOUT_SECONDS", d.MaxContentDownloadTimeoutSeconds),
		MaxContentDownloadSizeBytes:      env.GetIntFromEnv(prefix+"MAX_CONTENT_DOWNLOAD_SIZE_BYTES", d.MaxContentDownloadSizeBytes),
		MaxBookmarksToDownload:           env.GetIntFromEnv(prefix+"MAX_BOOKMARKS_TO_DOWNLOAD", d.MaxBookmarksToDownload),
		FeedCrawlingIntervalSeconds:      env.GetIntFromEnv(prefix+"FEED_CRAWLING_INTERVAL_SECONDS", d.FeedCrawlingIntervalSeconds),
		MonthsToAddToFeed:                env.GetIntFromEnv(prefix+"MONTHS_TO_ADD_TO_FEED", d.MonthsToAddToFeed),
	}
}

// OidcSettings are required for the server and have no defaults.
type OidcSettings struct {
	IdpServer    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// RequireOidc panics when one of the OIDC variables is missing.
func RequireOidc() OidcSettings {
	return OidcSettings{
		IdpServer:    env.RequireStringFromEnv(prefix + "OIDC_IDP_SERVER"),
		ClientID:     env.RequireStringFromEnv(prefix + "OIDC_CLIENT_ID"),
		ClientSecret: env.RequireStringFromEnv(prefix + "OIDC_CLIENT_SECRET"),
		RedirectURI:  env.RequireStringFromEnv(prefix + "OIDC_REDIRECT_URI"),
	}
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
