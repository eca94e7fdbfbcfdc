// Package config loads service configuration from an optional YAML file,
// an optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
)

const defaultJWTSecret = "changeme"

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// AdminConfig is the account created on first start when no users exist
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig enables the shared token revocation store when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database db.Config      `yaml:"database"`
	Auth     auth.Config    `yaml:"auth"`
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis"`
	Crawler  crawler.Config `yaml:"crawler"`
	Log      logger.Config  `yaml:"log"`

	// Warnings are non-fatal problems found while loading
	Warnings []string `yaml:"-"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        "8080",
			ReadTimeout: 30 * time.Second,
			// Batch requests stay open until every URL is scraped.
			WriteTimeout:    10 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		Auth: auth.Config{
			TokenDuration: 24 * time.Hour,
		},
		Crawler: crawler.DefaultConfig(),
		Log:     logger.Config{Level: "info"},
	}
}

// Load builds the configuration. SCRAPER_CONFIG names an optional YAML file;
// environment variables override it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("SCRAPER_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = defaultJWTSecret
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set, using default secret")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	setString(&cfg.Server.Port, "PORT")
	setList(&cfg.Server.CORSOrigins, "CORS_ORIGINS")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "MYSQL_HOST")
	setString(&cfg.Database.Port, "MYSQL_PORT")
	setString(&cfg.Database.User, "MYSQL_USER")
	setString(&cfg.Database.Password, "MYSQL_PASSWORD")
	setString(&cfg.Database.Database, "MYSQL_DATABASE")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")
	collect(setInt(&cfg.Database.MaxOpen, "DB_MAX_OPEN"))
	collect(setInt(&cfg.Database.MaxIdle, "DB_MAX_IDLE"))

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	collect(setDuration(&cfg.Auth.TokenDuration, "JWT_DURATION"))
	setString(&cfg.Admin.Username, "ADMIN_USERNAME")
	setString(&cfg.Admin.Password, "ADMIN_PASSWORD")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	collect(setInt(&cfg.Redis.DB, "REDIS_DB"))

	collect(setInt(&cfg.Crawler.Workers, "CRAWLER_WORKERS"))
	collect(setDuration(&cfg.Crawler.Timeout, "CRAWLER_TIMEOUT"))
	collect(setInt(&cfg.Crawler.MaxRetries, "CRAWLER_MAX_RETRIES"))
	setString(&cfg.Crawler.UserAgent, "CRAWLER_USER_AGENT")
	collect(setInt64(&cfg.Crawler.MaxBodyBytes, "CRAWLER_MAX_BODY_BYTES"))
	collect(setDuration(&cfg.Crawler.RobotsCacheTTL, "CRAWLER_ROBOTS_TTL"))
	collect(setFloat(&cfg.Crawler.RateLimit, "CRAWLER_RATE_LIMIT"))
	collect(setInt(&cfg.Crawler.RateBurst, "CRAWLER_RATE_BURST"))

	setString(&cfg.Log.Level, "LOG_LEVEL")
	collect(setBool(&cfg.Log.Development, "LOG_DEVELOPMENT"))

	return errors.Join(errs...)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case db.DriverMySQL, db.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", db.DriverMySQL, db.DriverSQLite, c.Database.Driver)
	}
	if c.Crawler.Workers < 1 {
		return fmt.Errorf("CRAWLER_WORKERS must be at least 1, got %d", c.Crawler.Workers)
	}
	if c.Auth.TokenDuration <= 0 {
		return fmt.Errorf("JWT_DURATION must be positive, got %s", c.Auth.TokenDuration)
	}
	return nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	*dst = getEnvOrDefault(key, *dst)
}

func setList(dst *[]string, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setInt64(dst *int64, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}
