package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sykell/url-scraper/internal/logger"
)

// InitDB opens the configured database, tunes the pool and runs migrations
func InitDB(config Config, log logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case DriverMySQL, "":
		dialector = mysql.Open(config.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(SQLiteDSN(config.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := Open(dialector, log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if config.Driver == DriverSQLite {
		// SQLite allows a single writer; one connection keeps transactions serialized.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(config.MaxOpen)
		sqlDB.SetMaxIdleConns(config.MaxIdle)
	}
	sqlDB.SetConnMaxLifetime(config.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Open connects through the given dialector with the service's GORM settings.
// Migrations are not run.
func Open(dialector gorm.Dialector, log logger.Logger) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		gormWriter{log: log},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite file database and migrates it. Used by the
// embedded mode and by tests.
func OpenSQLite(path string, log logger.Logger) (*gorm.DB, error) {
	cfg := DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.SQLitePath = path
	return InitDB(cfg, log)
}

// SQLiteDSN enables foreign keys and a busy timeout on the SQLite file.
func SQLiteDSN(path string) string {
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

type gormWriter struct {
	log logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...), logger.String("component", "gorm"))
}
