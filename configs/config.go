package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PresignTTL time.Duration
}

func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Config struct {
	AppEnv         string
	Port           string
	StoreDriver    string
	PostgresURI    string
	RedisURI       string
	SecretKey      string
	OperatorAPIKey string
	Timezone       string

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	TiktokClientKey       string
	TiktokClientSecret    string
	TiktokRedirectURI     string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string

	R2            R2
	SourceFeedURL string

	LockTTL          time.Duration
	ProviderTimeout  time.Duration
	TickSpec         string
	TickSlop         time.Duration
	TickBatch        int
	ExecutionGap     time.Duration
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	DedupWindow      int
	VisualThreshold  int
	RefillLowWater   float64

	DefaultDailyLimit   int
	DefaultTargetQueue  int
	DefaultPostInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		AppEnv:         getEnv("APP_ENV", "production"),
		Port:           getEnv("PORT", "3000"),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		PostgresURI:    getEnv("POSTGRES_URI", ""),
		RedisURI:       getEnv("REDIS_URI", ""),
		SecretKey:      getEnv("SECRET_KEY", ""),
		OperatorAPIKey: getEnv("OPERATOR_API_KEY", ""),
		Timezone:       getEnv("PUBLISH_TIMEZONE", "UTC"),

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/auth/youtube/callback"),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:     getEnv("TIKTOK_REDIRECT_URI", "http://localhost:3000/auth/tiktok/callback"),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", "http://localhost:3000/auth/instagram/callback"),

		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PresignTTL: getEnvDuration("R2_PRESIGN_TTL", time.Hour),
		},
		SourceFeedURL: getEnv("SOURCE_FEED_URL", ""),

		LockTTL:          getEnvDuration("LOCK_TTL", 5*time.Minute),
		ProviderTimeout:  getEnvDuration("PROVIDER_TIMEOUT", 4*time.Minute),
		TickSpec:         getEnv("TICK_SPEC", "@every 1m"),
		TickSlop:         getEnvDuration("TICK_SLOP", 3*time.Minute),
		TickBatch:        getEnvInt("TICK_BATCH", 20),
		ExecutionGap:     getEnvDuration("EXECUTION_GAP", 5*time.Second),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBackoffBase: getEnvDuration("RETRY_BACKOFF_BASE", 2*time.Minute),
		RetryBackoffMax:  getEnvDuration("RETRY_BACKOFF_MAX", 30*time.Minute),
		DedupWindow:      getEnvInt("DEDUP_WINDOW", 30),
		VisualThreshold:  getEnvInt("VISUAL_THRESHOLD", 6),
		RefillLowWater:   getEnvFloat("REFILL_LOW_WATER", 0.6),

		DefaultDailyLimit:   getEnvInt("DEFAULT_DAILY_LIMIT", 5),
		DefaultTargetQueue:  getEnvInt("DEFAULT_TARGET_QUEUE", 10),
		DefaultPostInterval: getEnvDuration("DEFAULT_POST_INTERVAL", 3*time.Hour),
	}
}

// Validate rejects combinations that break the at-most-once guarantees.
func (c *Config) Validate() error {
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.PostgresURI == "" {
		return errors.New("POSTGRES_URI is required")
	}
	if c.LockTTL <= c.ProviderTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed PROVIDER_TIMEOUT (%s)", c.LockTTL, c.ProviderTimeout)
	}
	if c.MaxRetries < 1 {
		return errors.New("MAX_RETRIES must be at least 1")
	}
	if c.RefillLowWater <= 0 || c.RefillLowWater > 1 {
		return errors.New("REFILL_LOW_WATER must be in (0, 1]")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid PUBLISH_TIMEZONE: %w", err)
	}
	if c.SecretKey != "" && len(c.SecretKey) != 16 && len(c.SecretKey) != 24 && len(c.SecretKey) != 32 {
		return errors.New("SECRET_KEY must be 16, 24 or 32 bytes")
	}
	return nil
}

// Location returns the reference timezone used for minute buckets and daily counters.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
