package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sessionedit/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
// Уже заданные переменные окружения не перезаписываются.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Errorf("config: ошибка чтения %s: %v", path, err)
		}
		return
	}
}

// BackendConfig — сервер чанков (upload, navigate, save, export).
type BackendConfig struct {
	URL     string
	Timeout time.Duration
	// BreakerFailures — подряд идущих ошибок до размыкания circuit breaker.
	BreakerFailures int
	// BreakerCooldown — сколько breaker остаётся разомкнутым.
	BreakerCooldown time.Duration
}

// SnapshotConfig — хранилище снимков состояния аннотаций (memory, redis или postgres).
type SnapshotConfig struct {
	Store    string
	RedisURL string
	TTL      time.Duration
	// IdleEvict — через сколько бездействия сессия выгружается из памяти (снимок остаётся).
	IdleEvict time.Duration
}

// DatabaseConfig — настройки подключения к БД журнала сохранений. Пустой URL — журнал отключён.
type DatabaseConfig struct {
	URL            string `yaml:"database_url"`
	MaxConnections int    `yaml:"db_max_connections"`
}

// RateLimitConfig — ограничение частоты запросов к /api/* (token bucket на IP).
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// Config содержит настройки сервиса редактора.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	ServerAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Backend  BackendConfig
	Snapshot SnapshotConfig
	Database DatabaseConfig

	MaxUploadSize int64

	MaxWSConnections int

	CORSAllowedOrigins string

	LogLevel string

	RateLimit RateLimitConfig

	// WebDir — собранный фронтенд; пустой или отсутствующий — статика не раздаётся.
	WebDir string
}

// DatabaseURL возвращает строку подключения к БД.
func (c *Config) DatabaseURL() string { return c.Database.URL }

// DBMaxConnections возвращает максимальное число соединений в пуле.
func (c *Config) DBMaxConnections() int {
	if c.Database.MaxConnections <= 0 {
		return 10
	}
	return c.Database.MaxConnections
}

// yamlConfig — промежуточная структура для парсинга YAML.
type yamlConfig struct {
	ServerAddr         string         `yaml:"server_addr"`
	ReadTimeout        int            `yaml:"read_timeout"`
	WriteTimeout       int            `yaml:"write_timeout"`
	IdleTimeout        int            `yaml:"idle_timeout"`
	BackendURL         string         `yaml:"backend_url"`
	BackendTimeout     int            `yaml:"backend_timeout"`
	BreakerFailures    int            `yaml:"breaker_failures"`
	BreakerCooldown    int            `yaml:"breaker_cooldown"`
	SnapshotStore      string         `yaml:"snapshot_store"`
	RedisURL           string         `yaml:"redis_url"`
	SessionTTLHours    int            `yaml:"session_ttl_hours"`
	SessionIdleMinutes int            `yaml:"session_idle_minutes"`
	Database           DatabaseConfig `yaml:"database"`
	MaxUploadSizeMB    int            `yaml:"max_upload_size_mb"`
	MaxWSConnections   int            `yaml:"max_ws_connections"`
	CORSAllowedOrigins string         `yaml:"cors_allowed_origins"`
	LogLevel           string         `yaml:"log_level"`
	RatePerSecond      float64        `yaml:"rate_per_second"`
	RateBurst          int            `yaml:"rate_burst"`
	WebDir             string         `yaml:"web_dir"`
}

func defaults() yamlConfig {
	return yamlConfig{
		ServerAddr:         ":8090",
		ReadTimeout:        15,
		WriteTimeout:       120,
		IdleTimeout:        60,
		BackendURL:         "http://localhost:5000",
		BackendTimeout:     30,
		BreakerFailures:    5,
		BreakerCooldown:    15,
		SnapshotStore:      "memory",
		RedisURL:           "redis://localhost:6379",
		SessionTTLHours:    72,
		SessionIdleMinutes: 60,
		MaxUploadSizeMB:    512,
		MaxWSConnections:   256,
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
		RatePerSecond:      20,
		RateBurst:          60,
		WebDir:             "./web/dist",
	}
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()

	paths := []string{os.Getenv("CONFIG_PATH"), "config/editor.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
			yc = defaults()
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}
	return fromYAML(yc)
}

// fromYAML применяет переменные окружения поверх значений из YAML.
func fromYAML(yc yamlConfig) *Config {
	cfg := &Config{
		ServerAddr:   envStr("SERVER_ADDR", yc.ServerAddr),
		ReadTimeout:  time.Duration(envInt("READ_TIMEOUT", yc.ReadTimeout)) * time.Second,
		WriteTimeout: time.Duration(envInt("WRITE_TIMEOUT", yc.WriteTimeout)) * time.Second,
		IdleTimeout:  time.Duration(envInt("IDLE_TIMEOUT", yc.IdleTimeout)) * time.Second,
		Backend: BackendConfig{
			URL:             strings.TrimSuffix(envStr("BACKEND_URL", yc.BackendURL), "/"),
			Timeout:         time.Duration(envInt("BACKEND_TIMEOUT", yc.BackendTimeout)) * time.Second,
			BreakerFailures: envInt("BREAKER_FAILURES", yc.BreakerFailures),
			BreakerCooldown: time.Duration(envInt("BREAKER_COOLDOWN", yc.BreakerCooldown)) * time.Second,
		},
		Snapshot: SnapshotConfig{
			Store:     strings.ToLower(envStr("SNAPSHOT_STORE", yc.SnapshotStore)),
			RedisURL:  envStr("REDIS_URL", yc.RedisURL),
			TTL:       time.Duration(envInt("SESSION_TTL_HOURS", yc.SessionTTLHours)) * time.Hour,
			IdleEvict: time.Duration(envInt("SESSION_IDLE_MINUTES", yc.SessionIdleMinutes)) * time.Minute,
		},
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", yc.Database.URL),
			MaxConnections: envInt("DB_MAX_CONNECTIONS", yc.Database.MaxConnections),
		},
		MaxUploadSize:      int64(envInt("MAX_UPLOAD_SIZE_MB", yc.MaxUploadSizeMB)) << 20,
		MaxWSConnections:   envInt("MAX_WS_CONNECTIONS", yc.MaxWSConnections),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
		RateLimit: RateLimitConfig{
			PerSecond: envFloat("RATE_PER_SECOND", yc.RatePerSecond),
			Burst:     envInt("RATE_BURST", yc.RateBurst),
		},
		WebDir: envStr("WEB_DIR", yc.WebDir),
	}

	switch cfg.Snapshot.Store {
	case "redis", "postgres":
	default:
		cfg.Snapshot.Store = "memory"
	}
	if cfg.Snapshot.IdleEvict <= 0 {
		cfg.Snapshot.IdleEvict = time.Hour
	}
	if cfg.Snapshot.TTL <= 0 {
		cfg.Snapshot.TTL = 72 * time.Hour
	}
	if cfg.Backend.BreakerFailures <= 0 {
		cfg.Backend.BreakerFailures = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}

	if os.Getenv("APP_ENV") == "production" && (cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*") {
		logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
	}
	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
