package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// ストアのドライバー名
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	RefreshStoreSQL   = "sql"
	RefreshStoreRedis = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver  string
	DatabaseURL  string
	SQLitePath   string
	RefreshStore string
	RedisURL     string

	// Token
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	// Password
	BcryptCost              int
	PasswordHashConcurrency int

	// Rate Limit（req/min）
	RateLimitAuth    int
	RateLimitGeneral int

	// Refresh token sweep
	RefreshSweepInterval  time.Duration
	RefreshSweepRetention time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定の変数をまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StoreDriverPostgres)
	cfg.RefreshStore = getEnvString("REFRESH_STORE", RefreshStoreSQL)

	// Required fields
	var missing []string

	cfg.AccessTokenSecret = os.Getenv("ACCESS_TOKEN_SECRET")
	if cfg.AccessTokenSecret == "" {
		missing = append(missing, "ACCESS_TOKEN_SECRET")
	}

	cfg.RefreshTokenSecret = os.Getenv("REFRESH_TOKEN_SECRET")
	if cfg.RefreshTokenSecret == "" {
		missing = append(missing, "REFRESH_TOKEN_SECRET")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RefreshStore == RefreshStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "fileauth.db")
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 10*time.Minute)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.PasswordHashConcurrency = getEnvInt("PASSWORD_HASH_CONCURRENCY", runtime.NumCPU())
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RefreshSweepInterval = getEnvDuration("REFRESH_SWEEP_INTERVAL", time.Hour)
	cfg.RefreshSweepRetention = getEnvDuration("REFRESH_SWEEP_RETENTION", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の組み合わせを検証する。
func (c *Config) validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverSQLite, c.StoreDriver))
	}

	switch c.RefreshStore {
	case RefreshStoreSQL, RefreshStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("REFRESH_STORE must be %q or %q, got %q", RefreshStoreSQL, RefreshStoreRedis, c.RefreshStore))
	}

	// 同一シークレットではリフレッシュトークンがアクセストークンとして通ってしまう
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.RefreshSweepInterval <= 0 {
		errs = append(errs, errors.New("REFRESH_SWEEP_INTERVAL must be positive"))
	}
	if c.RefreshSweepRetention < 0 {
		errs = append(errs, errors.New("REFRESH_SWEEP_RETENTION must not be negative"))
	}
	if c.RateLimitAuth <= 0 || c.RateLimitGeneral <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
