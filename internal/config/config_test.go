package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderGraph, c.DriveProvider)
	assert.Equal(t, 300, c.Browser.ThumbnailCacheSize)
	assert.Equal(t, "UserTokens", c.Tables.UserTokens)
	assert.Equal(t, "http://localhost:3000/api/auth/callback", c.RedirectURL())
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.ListenAddr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
drive_provider: google
oauth:
  client_id: from-file
browser:
  expand_limited: true
  thumbnail_cache_size: 50
log:
  level: debug
`)
	t.Setenv("OAUTH_CLIENT_ID", "from-env")
	t.Setenv("THUMBNAIL_CACHE_SIZE", "120")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, c.DriveProvider)
	assert.Equal(t, "from-env", c.OAuth.ClientID)
	assert.True(t, c.Browser.ExpandLimited)
	assert.Equal(t, 120, c.Browser.ThumbnailCacheSize)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "Preferences", c.Tables.Preferences)
}

func TestLoad_DevModeRedirect(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	c, err := Load("")
	require.NoError(t, err)
	assert.True(t, c.DevMode)
	assert.Equal(t, "http://localhost:8080/auth/callback", c.RedirectURL())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad bool", env: map[string]string{"EXPAND_LIMITED": "sometimes"}},
		{name: "bad int", env: map[string]string{"THUMBNAIL_CACHE_SIZE": "many"}},
		{name: "zero cache", env: map[string]string{"THUMBNAIL_CACHE_SIZE": "0"}},
		{name: "unknown provider", env: map[string]string{"DRIVE_PROVIDER": "ftp"}},
		{name: "bad yaml", file: "drive_provider: [graph"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
