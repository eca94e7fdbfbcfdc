package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/scrape"
)

// SessionStore persists sessions and their per-URL result rows
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Stats summarizes all stored sessions
type Stats struct {
	TotalSessions  int64 `json:"total_sessions"`
	TotalURLs      int64 `json:"total_urls"`
	SuccessfulURLs int64 `json:"successful_urls"`
	FailedURLs     int64 `json:"failed_urls"`
}

// NewSessionStore creates a store on top of an open connection
func NewSessionStore(dbConn *gorm.DB) *SessionStore {
	return &SessionStore{db: dbConn, now: time.Now}
}

// Create allocates a session and one pending result row per URL in a single
// transaction.
func (s *SessionStore) Create(ctx context.Context, name string, urls []string) (*db.Session, error) {
	if len(urls) == 0 {
		return nil, apperr.Invalid("session requires at least one URL")
	}

	session := db.Session{
		Name:      name,
		TotalURLs: len(urls),
		Status:    db.SessionPending,
		CreatedAt: s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		rows := make([]db.ScrapeResult, len(urls))
		for i, u := range urls {
			rows[i] = db.ScrapeResult{
				SessionID: session.ID,
				Position:  i,
				URL:       u,
				Status:    db.ResultPending,
			}
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "create session")
	}

	return &session, nil
}

// RecordResult stores the outcome for the URL at index. Only the first write
// for an index counts; later writes are ignored and report false.
func (s *SessionStore) RecordResult(ctx context.Context, sessionID uint, index int, outcome scrape.Outcome) (bool, error) {
	if outcome == nil {
		return false, apperr.Invalid("nil outcome for session %d index %d", sessionID, index)
	}

	now := s.now().UTC()
	updates := resultColumns(outcome, now)
	recorded := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.ScrapeResult{}).
			Where("session_id = ? AND position = ? AND status = ?", sessionID, index, db.ResultPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&db.ScrapeResult{}).
				Where("session_id = ? AND position = ?", sessionID, index).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("session %d index %d: %w", sessionID, index, apperr.ErrNotFound)
			}
			return nil
		}
		recorded = true

		if err := tx.Model(&db.Session{}).
			Where("id = ? AND completed_urls < total_urls", sessionID).
			Updates(map[string]interface{}{
				"completed_urls": gorm.Expr("completed_urls + 1"),
				"status":         db.SessionRunning,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&db.Session{}).
			Where("id = ? AND completed_urls = total_urls AND completed_at IS NULL", sessionID).
			Updates(map[string]interface{}{
				"status":       db.SessionCompleted,
				"completed_at": now,
			}).Error
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, err
		}
		return false, apperr.Wrap(apperr.ErrPersistence, err, "record result")
	}

	return recorded, nil
}

func resultColumns(outcome scrape.Outcome, at time.Time) map[string]interface{} {
	switch o := outcome.(type) {
	case scrape.Success:
		return map[string]interface{}{
			"status":        db.ResultSuccess,
			"title":         o.Title,
			"content":       o.Content,
			"word_count":    o.Metrics.WordCount,
			"char_count":    o.Metrics.CharCount,
			"line_count":    o.Metrics.LineCount,
			"error_message": nil,
			"scraped_at":    at,
		}
	case scrape.Failure:
		return map[string]interface{}{
			"status":        db.ResultError,
			"title":         nil,
			"content":       nil,
			"word_count":    nil,
			"char_count":    nil,
			"line_count":    nil,
			"error_message": o.Error(),
			"scraped_at":    at,
		}
	default:
		panic(fmt.Sprintf("unknown outcome type %T", outcome))
	}
}

// Get returns a session with its results in input order
func (s *SessionStore) Get(ctx context.Context, id uint) (*db.Session, []db.ScrapeResult, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var results []db.ScrapeResult
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("position asc").
		Find(&results).Error; err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrPersistence, err, "load results")
	}

	return session, results, nil
}

// GetSession returns the session row without its results
func (s *SessionStore) GetSession(ctx context.Context, id uint) (*db.Session, error) {
	var session db.Session
	err := s.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "load session")
	}
	return &session, nil
}

// List returns sessions newest first. A limit <= 0 returns all of them.
func (s *SessionStore) List(ctx context.Context, limit int) ([]db.Session, error) {
	query := s.db.WithContext(ctx).Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	sessions := make([]db.Session, 0)
	if err := query.Find(&sessions).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "list sessions")
	}
	return sessions, nil
}

// Delete removes a session and all of its results in one transaction.
// Sessions whose batch is still in flight cannot be deleted.
func (s *SessionStore) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session db.Session
		if err := tx.First(&session, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		if session.Status == db.SessionRunning || session.Status == db.SessionPending {
			return fmt.Errorf("session %d is still in progress: %w", id, apperr.ErrConflict)
		}

		if err := tx.Where("session_id = ?", id).Delete(&db.ScrapeResult{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Session{}, id).Error
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrConflict) {
			return err
		}
		return apperr.Wrap(apperr.ErrPersistence, err, "delete session")
	}
	return nil
}

// RepairInterrupted completes sessions left pending or running by a previous
// process. Their remaining placeholder rows are recorded as interrupted
// failures. It returns the number of sessions repaired.
func (s *SessionStore) RepairInterrupted(ctx context.Context) (int, error) {
	var stuck []db.Session
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []db.SessionStatus{db.SessionPending, db.SessionRunning}).
		Find(&stuck).Error; err != nil {
		return 0, apperr.Wrap(apperr.ErrPersistence, err, "find interrupted sessions")
	}

	failure := scrape.Fail(scrape.KindInterrupted, "scrape did not finish before the server stopped")
	for _, session := range stuck {
		var pending []db.ScrapeResult
		if err := s.db.WithContext(ctx).
			Where("session_id = ? AND status = ?", session.ID, db.ResultPending).
			Find(&pending).Error; err != nil {
			return 0, apperr.Wrap(apperr.ErrPersistence, err, "find pending results")
		}
		for _, row := range pending {
			if _, err := s.RecordResult(ctx, session.ID, row.Position, failure); err != nil {
				return 0, err
			}
		}
	}

	return len(stuck), nil
}

// Stats aggregates counts across all sessions
func (s *SessionStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	conn := s.db.WithContext(ctx)

	if err := conn.Model(&db.Session{}).Count(&stats.TotalSessions).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "count sessions")
	}
	if err := conn.Model(&db.ScrapeResult{}).Count(&stats.TotalURLs).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "count results")
	}
	if err := conn.Model(&db.ScrapeResult{}).Where("status = ?", db.ResultSuccess).Count(&stats.SuccessfulURLs).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "count successful results")
	}
	if err := conn.Model(&db.ScrapeResult{}).Where("status = ?", db.ResultError).Count(&stats.FailedURLs).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "count failed results")
	}

	return &stats, nil
}
