package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerPort:         "8080",
		RequestTimeout:     time.Second,
		MaxBodySize:        1024,
		DatabaseURL:        "postgres://localhost/survey",
		DBMaxConns:         4,
		DBMinConns:         1,
		JWTSecret:          "secret",
		TrashRetention:     time.Hour,
		TrashMaxAttempts:   5,
		SweepInterval:      time.Minute,
		CascadeConcurrency: 5,
		SortKeyMinGap:      1e-9,
		AssetBackend:       AssetBackendNone,
		LogFormat:          "pretty",
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/survey")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("TRASH_RETENTION", "48h")
	t.Setenv("TRASH_MAX_ATTEMPTS", "3")
	t.Setenv("SORT_KEY_MIN_GAP", "0.001")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("CASCADE_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "postgres://db/survey", cfg.DatabaseURL)
	require.Equal(t, 48*time.Hour, cfg.TrashRetention)
	require.Equal(t, 3, cfg.TrashMaxAttempts)
	require.InDelta(t, 0.001, cfg.SortKeyMinGap, 1e-12)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.True(t, cfg.S3UsePathStyle)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 5, cfg.CascadeConcurrency)
	require.Equal(t, AssetBackendNone, cfg.AssetBackend)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/survey")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "min conns above max", mutate: func(c *Config) { c.DBMinConns = 10 }, wantErr: "DB_MIN_CONNS"},
		{name: "zero retention", mutate: func(c *Config) { c.TrashRetention = 0 }, wantErr: "TRASH_RETENTION"},
		{name: "zero attempts", mutate: func(c *Config) { c.TrashMaxAttempts = 0 }, wantErr: "TRASH_MAX_ATTEMPTS"},
		{name: "negative gap", mutate: func(c *Config) { c.SortKeyMinGap = -1 }, wantErr: "SORT_KEY_MIN_GAP"},
		{name: "zero concurrency", mutate: func(c *Config) { c.CascadeConcurrency = 0 }, wantErr: "CASCADE_CONCURRENCY"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = " " }, wantErr: "JWT_SECRET"},
		{name: "zero sweep interval", mutate: func(c *Config) { c.SweepInterval = 0 }, wantErr: "SWEEP_INTERVAL"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.AssetBackend = AssetBackendS3 }, wantErr: "S3_BUCKET"},
		{name: "s3 half credentials", mutate: func(c *Config) {
			c.AssetBackend = AssetBackendS3
			c.S3Bucket = "assets"
			c.S3AccessKey = "key"
		}, wantErr: "S3_SECRET_KEY"},
		{name: "local without root", mutate: func(c *Config) { c.AssetBackend = AssetBackendLocal }, wantErr: "ASSET_ROOT"},
		{name: "unknown backend", mutate: func(c *Config) { c.AssetBackend = "ftp" }, wantErr: "ASSET_BACKEND"},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestValidateStoreIgnoresServerSettings(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.JWTSecret = ""
	cfg.ServerPort = ""
	require.NoError(t, cfg.ValidateStore())
}
