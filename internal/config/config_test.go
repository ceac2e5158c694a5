package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregat4/linkbook/internal/domain"
)

func TestLoadUsesDefaults(t *testing.T) {
	config := Load()
	defaults := domain.DefaultConfiguration()
	assert.Equal(t, defaults.BookmarksPageSize, config.BookmarksPageSize)
	assert.Equal(t, defaults.BatchChunkSize, config.BatchChunkSize)
	assert.Equal(t, defaults.MetadataCacheTTLSeconds, config.MetadataCacheTTLSeconds)
	assert.NotEmpty(t, config.SessionCookieSecretKey)
	assert.False(t, config.PrettyLog)
	assert.Empty(t, config.RedisAddr)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LINKBOOK_PAGE_SIZE", "42")
	t.Setenv("LINKBOOK_DB_FILENAME", "/tmp/other.sqlite")
	t.Setenv("LINKBOOK_LOG_PRETTY", "yes")
	t.Setenv("LINKBOOK_REDIS_ADDR", "localhost:6379")

	config := Load()
	assert.Equal(t, 42, config.BookmarksPageSize)
	assert.Equal(t, "/tmp/other.sqlite", config.DBFilename)
	assert.True(t, config.PrettyLog)
	assert.Equal(t, "localhost:6379", config.RedisAddr)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LINKBOOK_TEST_ONLY_VALUE=from-dotenv\n"), 0o600))
	t.Setenv("LINKBOOK_TEST_ONLY_VALUE", "")
	require.NoError(t, os.Unsetenv("LINKBOOK_TEST_ONLY_VALUE"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("LINKBOOK_TEST_ONLY_VALUE"))
}

func TestIsTrue(t *testing.T) {
	for _, s := range []string{"1", "true", "TRUE", " yes ", "on"} {
		assert.True(t, isTrue(s), s)
	}
	for _, s := range []string{"", "0", "false", "nope"} {
		assert.False(t, isTrue(s), s)
	}
}
