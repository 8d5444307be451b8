// Package config loads explorer settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Drive backends.
const (
	ProviderGraph  = "graph"
	ProviderGoogle = "google"
	ProviderMemory = "memory"
)

// Config holds every setting of the API, server and CLI.
type Config struct {
	DevMode       bool   `yaml:"dev_mode"`
	DriveProvider string `yaml:"drive_provider"` // graph, google or memory
	GraphBaseURL  string `yaml:"graph_base_url"`
	ListenAddr    string `yaml:"listen_addr"`
	FrontendURL   string `yaml:"frontend_url"`

	OAuth struct {
		ClientID          string `yaml:"client_id"`
		ClientSecretParam string `yaml:"client_secret_param"`
		RedirectURL       string `yaml:"redirect_url"`
	} `yaml:"oauth"`

	Tables struct {
		UserTokens  string `yaml:"user_tokens"`
		Preferences string `yaml:"preferences"`
		FileStore   string `yaml:"file_store"`
	} `yaml:"tables"`

	KMSKeyID          string `yaml:"kms_key_id"`
	JWTSecretParam    string `yaml:"jwt_secret_param"`
	OriginSecretParam string `yaml:"origin_secret_param"` // X-Origin-Verify value set by CloudFront

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`

	Browser struct {
		ExpandLimited       bool `yaml:"expand_limited"`
		ThumbnailCacheSize  int  `yaml:"thumbnail_cache_size"`
		PrefetchConcurrency int  `yaml:"prefetch_concurrency"`
	} `yaml:"browser"`
}

// Default returns the built-in settings.
func Default() *Config {
	c := &Config{
		DriveProvider: ProviderGraph,
		GraphBaseURL:  "https://graph.microsoft.com/v1.0",
		ListenAddr:    ":8080",
		FrontendURL:   "http://localhost:3000",
	}
	c.OAuth.ClientSecretParam = "/explorer/oauth-client-secret"
	c.Tables.UserTokens = "UserTokens"
	c.Tables.Preferences = "Preferences"
	c.Tables.FileStore = "FileStore"
	c.KMSKeyID = "alias/explorer-token-key"
	c.JWTSecretParam = "/explorer/jwt-secret"
	c.OriginSecretParam = "/explorer/api-gateway-secret"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Browser.ThumbnailCacheSize = 300
	c.Browser.PrefetchConcurrency = 4
	return c
}

// Load reads path, if it exists, over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func (c *Config) applyEnv() error {
	if err := setBool(&c.DevMode, "DEV_MODE"); err != nil {
		return err
	}
	setString(&c.DriveProvider, "DRIVE_PROVIDER")
	setString(&c.GraphBaseURL, "GRAPH_BASE_URL")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.FrontendURL, "FRONTEND_URL")
	setString(&c.OAuth.ClientID, "OAUTH_CLIENT_ID")
	setString(&c.OAuth.ClientSecretParam, "OAUTH_CLIENT_SECRET_PARAM")
	setString(&c.OAuth.RedirectURL, "OAUTH_REDIRECT_URL")
	setString(&c.Tables.UserTokens, "USER_TOKENS_TABLE")
	setString(&c.Tables.Preferences, "PREFERENCES_TABLE")
	setString(&c.Tables.FileStore, "FILE_STORE_TABLE")
	setString(&c.KMSKeyID, "KMS_KEY_ID")
	setString(&c.JWTSecretParam, "JWT_SECRET_PARAM")
	setString(&c.OriginSecretParam, "API_GATEWAY_SECRET_PARAM")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	if err := setBool(&c.Browser.ExpandLimited, "EXPAND_LIMITED"); err != nil {
		return err
	}
	return setInt(&c.Browser.ThumbnailCacheSize, "THUMBNAIL_CACHE_SIZE")
}

// RedirectURL returns the OAuth callback, derived from the mode when unset.
func (c *Config) RedirectURL() string {
	if c.OAuth.RedirectURL != "" {
		return c.OAuth.RedirectURL
	}
	if c.DevMode {
		return "http://localhost:8080/auth/callback"
	}
	return c.FrontendURL + "/api/auth/callback"
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.DriveProvider {
	case ProviderGraph, ProviderGoogle, ProviderMemory:
	default:
		return fmt.Errorf("unknown drive provider %q", c.DriveProvider)
	}
	if c.Browser.ThumbnailCacheSize <= 0 {
		return fmt.Errorf("thumbnail cache size must be positive, got %d", c.Browser.ThumbnailCacheSize)
	}
	return nil
}
