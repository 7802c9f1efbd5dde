package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	DiscordToken    string         `yaml:"discord_token"`
	ApplicationID   string         `yaml:"application_id"`
	LogLevel        string         `yaml:"log_level"`
	DefaultLanguage string         `yaml:"default_language"`
	RetentionDays   int            `yaml:"retention_days"`
	Database        DatabaseConfig `yaml:"database"`
	Faceit          FaceitConfig   `yaml:"faceit"`
	Sync            SyncConfig     `yaml:"sync"`
	HTTP            HTTPConfig     `yaml:"http"`
	Discord         DiscordConfig  `yaml:"discord"`
	EmbedColors     EmbedColors    `yaml:"embed_colors"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Name is only used by the mongo driver; empty means the path of the DSN.
	Name string `yaml:"name"`
}

type FaceitConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type SyncConfig struct {
	IntervalHours int  `yaml:"interval_hours"`
	RunOnStart    bool `yaml:"run_on_start"`
}

type HTTPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DiscordConfig struct {
	RoleCacheSeconds int `yaml:"role_cache_seconds"`

	// Rank requests a member may submit per window; 0 disables the limit.
	RankRequestLimit         int `yaml:"rank_request_limit"`
	RankRequestWindowMinutes int `yaml:"rank_request_window_minutes"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		DefaultLanguage: "tr",
		RetentionDays:   14,
		Database:        DatabaseConfig{Driver: DriverSQLite, DSN: "/data/rolebot.db"},
		Faceit: FaceitConfig{
			BaseURL:           "https://open.faceit.com/data/v4",
			TimeoutSeconds:    10,
			RequestsPerSecond: 5,
		},
		Sync:    SyncConfig{IntervalHours: 24, RunOnStart: true},
		HTTP:    HTTPConfig{Enabled: false, Addr: ":8080"},
		Discord: DiscordConfig{RoleCacheSeconds: 60, RankRequestLimit: 3, RankRequestWindowMinutes: 10},
		EmbedColors: EmbedColors{
			Action:  0x5865F2,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
		},
	}
}

func Load() (Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Faceit.APIKey == "" {
		return errors.New("FACEIT_API_KEY is required")
	}

	cfg.DefaultLanguage = normalizeLanguage(cfg.DefaultLanguage)
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	if cfg.Database.DSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	cfg.Faceit.BaseURL = strings.TrimRight(cfg.Faceit.BaseURL, "/")

	if cfg.Faceit.TimeoutSeconds <= 0 {
		cfg.Faceit.TimeoutSeconds = 10
	}
	if cfg.Faceit.RequestsPerSecond <= 0 {
		cfg.Faceit.RequestsPerSecond = 5
	}
	if cfg.Sync.IntervalHours <= 0 {
		cfg.Sync.IntervalHours = 24
	}
	if cfg.Discord.RoleCacheSeconds < 0 {
		cfg.Discord.RoleCacheSeconds = 0
	}
	if cfg.Discord.RankRequestLimit < 0 {
		cfg.Discord.RankRequestLimit = 0
	}
	if cfg.Discord.RankRequestWindowMinutes <= 0 {
		cfg.Discord.RankRequestWindowMinutes = 10
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 14
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.ApplicationID = envString("DISCORD_APPLICATION_ID", cfg.ApplicationID)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultLanguage = envString("DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envString("DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.Name = envString("DATABASE_NAME", cfg.Database.Name)
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Database.Driver = DriverMongo
		cfg.Database.DSN = uri
	}
	cfg.Faceit.APIKey = envString("FACEIT_API_KEY", cfg.Faceit.APIKey)
	cfg.Faceit.BaseURL = envString("FACEIT_BASE_URL", cfg.Faceit.BaseURL)
	cfg.Faceit.TimeoutSeconds = envInt("FACEIT_TIMEOUT_SECONDS", cfg.Faceit.TimeoutSeconds)
	cfg.Faceit.RequestsPerSecond = envFloat("FACEIT_REQUESTS_PER_SECOND", cfg.Faceit.RequestsPerSecond)
	cfg.Sync.IntervalHours = envInt("SYNC_INTERVAL_HOURS", cfg.Sync.IntervalHours)
	cfg.Sync.RunOnStart = envBool("SYNC_RUN_ON_START", cfg.Sync.RunOnStart)
	cfg.HTTP.Enabled = envBool("HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.HTTP.Addr = envString("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.JWTSecret = envString("HTTP_JWT_SECRET", cfg.HTTP.JWTSecret)
	cfg.Discord.RoleCacheSeconds = envInt("DISCORD_ROLE_CACHE_SECONDS", cfg.Discord.RoleCacheSeconds)
	cfg.Discord.RankRequestLimit = envInt("RANK_REQUEST_LIMIT", cfg.Discord.RankRequestLimit)
	cfg.Discord.RankRequestWindowMinutes = envInt("RANK_REQUEST_WINDOW_MINUTES", cfg.Discord.RankRequestWindowMinutes)
	cfg.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.EmbedColors.Action)
	cfg.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.EmbedColors.Warning)
	cfg.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.EmbedColors.Error)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeLanguage(value string) string {
	switch strings.ToLower(value) {
	case "en":
		return "en"
	default:
		return "tr"
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return DriverPostgres
	case "mongo", "mongodb":
		return DriverMongo
	default:
		return DriverSQLite
	}
}
