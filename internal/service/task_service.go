package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
)

// TaskStore persists scheduled tasks
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(dbConn *gorm.DB) *TaskStore {
	return &TaskStore{db: dbConn}
}

// Create stores a new active task
func (s *TaskStore) Create(ctx context.Context, name string, urls []string, schedule string, respectRobots bool) (*db.ScheduledTask, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("task name cannot be empty")
	}
	task := db.ScheduledTask{
		Name:          name,
		URLs:          db.JoinURLs(urls),
		Schedule:      schedule,
		RespectRobots: respectRobots,
		Active:        true,
	}
	urlList := task.URLList()
	if len(urlList) == 0 {
		return nil, apperr.Invalid("task requires at least one URL")
	}
	task.URLs = db.JoinURLs(urlList)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		// RespectRobots has a column default; write false explicitly.
		if !respectRobots {
			if err := tx.Model(&task).Update("respect_robots", false).Error; err != nil {
				return err
			}
			task.RespectRobots = false
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "create task")
	}
	return &task, nil
}

func (s *TaskStore) Get(ctx context.Context, id uint) (*db.ScheduledTask, error) {
	var task db.ScheduledTask
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %d: %w", id, apperr.ErrNotFound)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "load task")
	}
	return &task, nil
}

// List returns all tasks, oldest first. With activeOnly only active ones.
func (s *TaskStore) List(ctx context.Context, activeOnly bool) ([]db.ScheduledTask, error) {
	query := s.db.WithContext(ctx).Order("id asc")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	tasks := make([]db.ScheduledTask, 0)
	if err := query.Find(&tasks).Error; err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "list tasks")
	}
	return tasks, nil
}

func (s *TaskStore) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&db.ScheduledTask{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return apperr.Wrap(apperr.ErrPersistence, res.Error, "update task")
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// MarkRun records when a task last ran and which session it produced
func (s *TaskStore) MarkRun(ctx context.Context, id uint, at time.Time, sessionID uint) error {
	err := s.db.WithContext(ctx).Model(&db.ScheduledTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_run_at":     at,
		"last_session_id": sessionID,
	}).Error
	if err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err, "mark task run")
	}
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&db.ScheduledTask{}, id)
	if res.Error != nil {
		return apperr.Wrap(apperr.ErrPersistence, res.Error, "delete task")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
