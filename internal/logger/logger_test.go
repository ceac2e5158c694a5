package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		lvl, ok := parseLevel(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, lvl, input)
	}
	lvl, ok := parseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func TestLoggerWritesStructuredAndFormattedEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := wrap(zap.New(core))

	log.Warn("fetch failed", String("url", "https://a.example"), Int("attempt", 2), Error(errors.New("boom")))
	log.Infof("applied migration %d", 3)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "https://a.example", fields["url"])
	assert.Equal(t, int64(2), fields["attempt"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "applied migration 3", entries[1].Message)
}

func TestNewHonoursLevel(t *testing.T) {
	log := New("error", false)
	require.NotNil(t, log)
	_ = log.Sync()
	assert.NotNil(t, NewNop())
}
