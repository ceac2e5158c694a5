package urlnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureScheme(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "https://example.com"},
		{"Example.com/Path", "https://Example.com/Path"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://example.com", "HTTPS://example.com"},
		{"  example.com ", "https://example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EnsureScheme(tt.in), tt.in)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "https://example.com"},
		{"https://Example.com/Docs/", "https://example.com/docs"},
		{"https://example.com/a//", "https://example.com/a"},
		{"http://example.com:8080/x?q=Go#frag", "http://example.com:8080/x?q=go"},
		{"https://user:pw@example.com/", "https://example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.in), tt.in)
	}
}

func TestKeyAlwaysHasSchemeAndIsIdempotent(t *testing.T) {
	inputs := []string{
		"example.com",
		"www.Example.org/some/Path/",
		"news.ycombinator.com/item?id=1",
		"localhost:3000/",
		"%zz-not-a-url",
	}
	for _, in := range inputs {
		once := Key(in)
		assert.True(t, strings.HasPrefix(once, "https://"), once)
		assert.Equal(t, once, Key(once), in)
	}
}

func TestCanonicalKeepsCasing(t *testing.T) {
	assert.Equal(t, "https://example.com/CamelCase", Canonical("example.com/CamelCase/"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://example.com:8443/x"))
	assert.Equal(t, "example.com", Domain("example.com/x"))
	assert.Equal(t, "", Domain("%zz"))
}
