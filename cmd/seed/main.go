package main

import (
	"context"
	"errors"
	"flag"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/config"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/service"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	Username string
	Password string
	Force    bool
}

// NewSeedConfig creates a new seed configuration
func NewSeedConfig() *SeedConfig {
	username := flag.String("username", "admin", "Admin username")
	password := flag.String("password", "adminpass", "Admin password")
	force := flag.Bool("force", false, "Force recreation of admin user")

	flag.Parse()

	return &SeedConfig{
		Username: *username,
		Password: *password,
		Force:    *force,
	}
}

func main() {
	seed := NewSeedConfig()
	log := logger.Must(logger.Config{Level: "info"})
	defer func() { _ = log.Sync() }()

	// Validate configuration
	if seed.Username == "" {
		log.Fatal("Username cannot be empty")
	}
	if len(seed.Password) < 6 {
		log.Fatal("Password must be at least 6 characters long")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", logger.Error(err))
	}

	log.Info("Starting database seeding...")

	// Initialize database connection
	dbConn, err := db.InitDB(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", logger.Error(err))
	}

	ctx := context.Background()
	users := service.NewUserStore(dbConn)

	// Check if admin user already exists
	existing, err := users.GetUserByUsername(ctx, seed.Username)
	switch {
	case err == nil:
		if !seed.Force {
			log.Info("Admin user already exists. Use -force flag to recreate.", logger.String("username", seed.Username))
			return
		}

		log.Info("Recreating admin user...", logger.String("username", seed.Username))
		if err := dbConn.Delete(existing).Error; err != nil {
			log.Fatal("Failed to delete existing user", logger.Error(err))
		}
	case !errors.Is(err, apperr.ErrNotFound):
		log.Fatal("Database error checking existing user", logger.Error(err))
	}

	user, err := users.CreateUser(ctx, seed.Username, seed.Password)
	if err != nil {
		log.Fatal("Failed to create admin user", logger.Error(err))
	}

	log.Info("Successfully created admin user",
		logger.String("username", user.Username),
		logger.Uint("user_id", user.ID))
	log.Info("Database seeding completed successfully")
}
