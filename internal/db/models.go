package db

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	// SessionFailed is part of the status vocabulary but is never assigned
	// because individual URL failures do not fail a session.
	SessionFailed SessionStatus = "failed"
)

type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Session represents a named scraping job over a fixed list of URLs
type Session struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"not null;size:512" json:"name"`
	TotalURLs     int            `gorm:"not null" json:"total_urls"`
	CompletedURLs int            `gorm:"not null;default:0" json:"completed_urls"`
	Status        SessionStatus  `gorm:"not null;size:16;default:'pending';index" json:"status"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	Results       []ScrapeResult `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// ScrapeResult is one URL's outcome within a session. Position is the URL's
// index in the submitted list.
type ScrapeResult struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	SessionID    uint         `gorm:"not null;uniqueIndex:idx_session_position" json:"session_id"`
	Position     int          `gorm:"not null;uniqueIndex:idx_session_position" json:"position"`
	URL          string       `gorm:"not null;type:text" json:"url"`
	Status       ResultStatus `gorm:"not null;size:16;default:'pending'" json:"status"`
	Title        *string      `gorm:"type:text" json:"title,omitempty"`
	Content      *string      `gorm:"type:longtext" json:"content,omitempty"`
	WordCount    *int         `json:"word_count,omitempty"`
	CharCount    *int         `json:"char_count,omitempty"`
	LineCount    *int         `json:"line_count,omitempty"`
	ErrorMessage *string      `gorm:"type:text" json:"error_message,omitempty"`
	ScrapedAt    *time.Time   `json:"scraped_at"`
}

// User represents an authenticated user
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduledTask re-runs a URL list on a cron schedule, one session per run
type ScheduledTask struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null;size:255" json:"name"`
	URLs          string     `gorm:"not null;type:text" json:"-"` // newline separated
	Schedule      string     `gorm:"not null;size:100" json:"schedule"`
	RespectRobots bool       `gorm:"not null;default:true" json:"respect_robots"`
	Active        bool       `gorm:"not null;default:true" json:"active"`
	LastRunAt     *time.Time `json:"last_run_at"`
	LastSessionID *uint      `json:"last_session_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// URLList splits the stored URLs, skipping blank lines
func (t ScheduledTask) URLList() []string {
	var urls []string
	for _, line := range strings.Split(t.URLs, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	return urls
}

// JoinURLs encodes a URL list for the URLs column
func JoinURLs(urls []string) string {
	return strings.Join(urls, "\n")
}
