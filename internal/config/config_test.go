package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SCRAPER_CONFIG", "PORT", "CORS_ORIGINS",
		"DB_DRIVER", "MYSQL_HOST", "MYSQL_PORT", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE",
		"SQLITE_PATH", "DB_MAX_OPEN", "DB_MAX_IDLE",
		"JWT_SECRET", "JWT_DURATION", "ADMIN_USERNAME", "ADMIN_PASSWORD",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"CRAWLER_WORKERS", "CRAWLER_TIMEOUT", "CRAWLER_MAX_RETRIES", "CRAWLER_USER_AGENT",
		"CRAWLER_MAX_BODY_BYTES", "CRAWLER_ROBOTS_TTL", "CRAWLER_RATE_LIMIT", "CRAWLER_RATE_BURST",
		"LOG_LEVEL", "LOG_DEVELOPMENT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Crawler.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, defaultJWTSecret, cfg.Auth.JWTSecret)
	assert.Len(t, cfg.Warnings, 1)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  cors_origins: ["https://app.example"]
database:
  driver: sqlite
  sqlite_path: /tmp/from-file.db
auth:
  jwt_secret: file-secret
  token_duration: 2h
crawler:
  workers: 3
  timeout: 15s
  user_agent: FileBot/1.0
log:
  level: debug
`), 0o600))

	t.Setenv("SCRAPER_CONFIG", path)
	t.Setenv("CRAWLER_WORKERS", "8")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/from-file.db", cfg.Database.SQLitePath)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, 8, cfg.Crawler.Workers)
	assert.Equal(t, 15*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, "FileBot/1.0", cfg.Crawler.UserAgent)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Warnings)

	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Crawler.MaxRetries)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad int", map[string]string{"CRAWLER_WORKERS": "many"}},
		{"bad duration", map[string]string{"JWT_DURATION": "forever"}},
		{"zero workers", map[string]string{"CRAWLER_WORKERS": "0"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"missing file", map[string]string{"SCRAPER_CONFIG": "/does/not/exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
