package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AssetBackendNone  = "none"
	AssetBackendLocal = "local"
	AssetBackendS3    = "s3"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	MaxBodySize        int64

	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnLifetime time.Duration

	JWTSecret    string
	CORSOrigins  []string
	RateLimitRPM int

	TrashRetention     time.Duration
	TrashMaxAttempts   int
	SweepInterval      time.Duration
	CascadeConcurrency int
	SortKeyMinGap      float64

	AssetBackend   string
	AssetRoot      string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UsePathStyle bool

	LogLevel  string
	LogFormat string
}

// Load reads the environment (and an optional .env file) and validates the
// full server configuration.
func Load() (*Config, error) {
	cfg := Parse()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the environment without validating it. Callers that only need
// the store, such as the operator CLI, validate with ValidateStore.
func Parse() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxBodySize:        getInt64("MAX_BODY_SIZE", 10<<20),

		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:        int32(getInt("DB_MIN_CONNS", 1)),
		DBMaxConnLifetime: getDuration("DB_MAX_CONN_LIFETIME", time.Hour),

		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM: getInt("RATE_LIMIT_RPM", 100),

		TrashRetention:     getDuration("TRASH_RETENTION", 30*24*time.Hour),
		TrashMaxAttempts:   getInt("TRASH_MAX_ATTEMPTS", 5),
		SweepInterval:      getDuration("SWEEP_INTERVAL", 10*time.Minute),
		CascadeConcurrency: getInt("CASCADE_CONCURRENCY", 5),
		SortKeyMinGap:      getFloat("SORT_KEY_MIN_GAP", 1e-9),

		AssetBackend:   strings.ToLower(getEnv("ASSET_BACKEND", AssetBackendNone)),
		AssetRoot:      getEnv("ASSET_ROOT", "./state/assets"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3AccessKey:    strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		S3SecretKey:    strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		S3Bucket:       strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3UsePathStyle: getBool("S3_USE_PATH_STYLE", false),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
	}
}

func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.MaxBodySize <= 0 {
		return fmt.Errorf("MAX_BODY_SIZE must be positive")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	switch c.AssetBackend {
	case AssetBackendNone:
	case AssetBackendLocal:
		if strings.TrimSpace(c.AssetRoot) == "" {
			return fmt.Errorf("ASSET_ROOT cannot be empty for the local asset backend")
		}
	case AssetBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 asset backend")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	default:
		return fmt.Errorf("ASSET_BACKEND must be one of none, local, s3; got %q", c.AssetBackend)
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json; got %q", c.LogFormat)
	}

	return nil
}

// ValidateStore checks the settings needed to open the database and run the
// engine.
func (c *Config) ValidateStore() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}

	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.TrashRetention <= 0 {
		return fmt.Errorf("TRASH_RETENTION must be positive")
	}

	if c.TrashMaxAttempts <= 0 {
		return fmt.Errorf("TRASH_MAX_ATTEMPTS must be positive")
	}

	if c.CascadeConcurrency <= 0 {
		return fmt.Errorf("CASCADE_CONCURRENCY must be positive")
	}

	if c.SortKeyMinGap <= 0 {
		return fmt.Errorf("SORT_KEY_MIN_GAP must be positive")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
