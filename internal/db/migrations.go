package db

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// runMigrations performs database migrations
func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Session{}, &ScrapeResult{}, &ScheduledTask{})
}

// EnsureAdmin creates the given user when the users table is empty. It
// reports whether a user was created.
func EnsureAdmin(db *gorm.DB, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	if err := db.Create(&User{Username: username, Password: string(hashed)}).Error; err != nil {
		return false, err
	}
	return true, nil
}
