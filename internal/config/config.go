// Package config загружает настройки сервера из окружения.
// Переменные с префиксом BOARDKEEPER_ перекрывают значения из .env
// файлов: godotenv не трогает уже установленные переменные.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/server/middleware"
)

func init() {
	// .env для общих настроек разработки, .env.local для локальных
	// переопределений (в gitignore)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Backend задает реализацию хранилища
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Config содержит все настройки сервера
type Config struct {
	Address  string // адрес HTTP listener
	LogLevel string // debug | info | warn | error

	StorageBackend Backend
	FilePath       string // путь к JSON-документу файлового бэкенда
	DatabasePath   string // путь к SQLite файлу
	MediaRoot      string // каталог для media-блобов
	ActivityPath   string // путь к bbolt файлу журнала активности

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MediaQuotaBytes int64
	MediaGraceTTL   time.Duration
	GCSweepInterval time.Duration

	RateLimits map[middleware.Scope]middleware.ScopeLimit
}

const (
	defaultAddress         = ":8080"
	defaultFilePath        = "./data/boards.json"
	defaultDatabasePath    = "./data/boardkeeper.db"
	defaultMediaRoot       = "./data/media"
	defaultActivityPath    = "./data/activity.db"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Load читает окружение и валидирует результат
func Load() (*Config, error) {
	cfg := &Config{
		Address:         getEnv("BOARDKEEPER_ADDRESS", defaultAddress),
		LogLevel:        getEnv("BOARDKEEPER_LOG_LEVEL", "info"),
		StorageBackend:  Backend(getEnv("BOARDKEEPER_STORAGE_BACKEND", string(BackendFile))),
		FilePath:        getEnv("BOARDKEEPER_FILE_PATH", defaultFilePath),
		DatabasePath:    getEnv("BOARDKEEPER_DATABASE_PATH", defaultDatabasePath),
		MediaRoot:       getEnv("BOARDKEEPER_MEDIA_ROOT", defaultMediaRoot),
		ActivityPath:    getEnv("BOARDKEEPER_ACTIVITY_PATH", defaultActivityPath),
		JWTSecret:       os.Getenv("BOARDKEEPER_JWT_SECRET"),
		AccessTokenTTL:  getDuration("BOARDKEEPER_ACCESS_TOKEN_TTL", defaultAccessTokenTTL),
		RefreshTokenTTL: getDuration("BOARDKEEPER_REFRESH_TOKEN_TTL", defaultRefreshTokenTTL),
		MediaQuotaBytes: getInt64("BOARDKEEPER_MEDIA_QUOTA_BYTES", media.DefaultQuotaBytes),
		MediaGraceTTL:   getDuration("BOARDKEEPER_MEDIA_GRACE_TTL", media.DefaultGraceTTL),
		GCSweepInterval: getDuration("BOARDKEEPER_GC_SWEEP_INTERVAL", media.DefaultSweepInterval),
		RateLimits:      middleware.DefaultLimits(),
	}

	if cfg.StorageBackend != BackendFile && cfg.StorageBackend != BackendSQLite {
		return nil, fmt.Errorf("invalid BOARDKEEPER_STORAGE_BACKEND %q: must be %q or %q",
			cfg.StorageBackend, BackendFile, BackendSQLite)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("BOARDKEEPER_JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("BOARDKEEPER_JWT_SECRET must be at least 32 bytes")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.MediaQuotaBytes <= 0 {
		return nil, fmt.Errorf("BOARDKEEPER_MEDIA_QUOTA_BYTES must be positive")
	}

	// Лимиты окон перекрываются поштучно, формат "count/period",
	// например "40/1m"
	for scope := range cfg.RateLimits {
		key := "BOARDKEEPER_RATE_LIMIT_" + envSuffix(scope)
		raw, exists := os.LookupEnv(key)
		if !exists {
			continue
		}
		limit, err := parseScopeLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		cfg.RateLimits[scope] = limit
	}

	return cfg, nil
}

func envSuffix(scope middleware.Scope) string {
	out := make([]byte, 0, len(scope))
	for i := 0; i < len(scope); i++ {
		c := scope[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func parseScopeLimit(raw string) (middleware.ScopeLimit, error) {
	var count int
	var period string
	if _, err := fmt.Sscanf(raw, "%d/%s", &count, &period); err != nil {
		return middleware.ScopeLimit{}, fmt.Errorf("expected format count/period, got %q", raw)
	}
	if count <= 0 {
		return middleware.ScopeLimit{}, fmt.Errorf("count must be positive, got %d", count)
	}
	window, err := time.ParseDuration(period)
	if err != nil {
		return middleware.ScopeLimit{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	if window <= 0 {
		return middleware.ScopeLimit{}, fmt.Errorf("period must be positive, got %q", period)
	}
	return middleware.ScopeLimit{Limit: count, Window: window}, nil
}

// SlogLevel преобразует текстовый уровень в slog.Level.
// Неизвестный уровень трактуется как info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv возвращает значение переменной или fallback
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid duration in %s: %v\n", key, err)
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid integer in %s: %v\n", key, err)
		return fallback
	}
	return n
}
