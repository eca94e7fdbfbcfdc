package db

import (
	"fmt"
	"time"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds database configuration
type Config struct {
	Driver     string        `yaml:"driver"`
	Host       string        `yaml:"host"`
	Port       string        `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	Database   string        `yaml:"database"`
	SQLitePath string        `yaml:"sqlite_path"`
	MaxOpen    int           `yaml:"max_open"`
	MaxIdle    int           `yaml:"max_idle"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the database defaults used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Driver:     DriverMySQL,
		Host:       "localhost",
		Port:       "3306",
		User:       "root",
		Database:   "url_scraper",
		SQLitePath: "scraper.db",
		MaxOpen:    25,
		MaxIdle:    5,
		Timeout:    30 * time.Second,
	}
}

// DSN builds the MySQL connection string
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
