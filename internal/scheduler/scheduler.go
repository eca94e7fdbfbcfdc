// Package scheduler re-runs stored URL lists on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
)

// TaskRepository stores scheduled tasks
type TaskRepository interface {
	Create(ctx context.Context, name string, urls []string, schedule string, respectRobots bool) (*db.ScheduledTask, error)
	Get(ctx context.Context, id uint) (*db.ScheduledTask, error)
	List(ctx context.Context, activeOnly bool) ([]db.ScheduledTask, error)
	SetActive(ctx context.Context, id uint, active bool) error
	MarkRun(ctx context.Context, id uint, at time.Time, sessionID uint) error
	Delete(ctx context.Context, id uint) error
}

// BatchRunner scrapes a URL list into a new session
type BatchRunner interface {
	Run(ctx context.Context, name string, urls []string, respectRobots bool) (*crawler.BatchReport, error)
}

// Scheduler owns the cron entries of all active tasks
type Scheduler struct {
	tasks   TaskRepository
	runner  BatchRunner
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	entries map[uint]cron.EntryID
	running map[uint]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Call Start to load stored tasks.
func New(tasks TaskRepository, runner BatchRunner, log logger.Logger, m *metrics.Metrics) *Scheduler {
	if m == nil {
		m = metrics.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	log = log.With(logger.String("component", "scheduler"))
	cronLog := cronLogger{log: log}

	return &Scheduler{
		tasks:   tasks,
		runner:  runner,
		log:     log,
		metrics: m,
		now:     time.Now,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		parser:  parser,
		entries: make(map[uint]cron.EntryID),
		running: make(map[uint]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start schedules every active task and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.tasks.List(ctx, true)
	if err != nil {
		return fmt.Errorf("load scheduled tasks: %w", err)
	}

	for _, task := range tasks {
		if err := s.schedule(task); err != nil {
			s.log.Error("Skipping task with bad schedule",
				logger.Uint("task_id", task.ID),
				logger.String("schedule", task.Schedule),
				logger.Error(err))
		}
	}

	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("tasks", len(tasks)))
	return nil
}

// Stop halts the cron loop. Batches already triggered are cancelled and
// waited for; their remaining URLs are recorded as failures.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Create stores a task and schedules it
func (s *Scheduler) Create(ctx context.Context, name string, urls []string, schedule string, respectRobots bool) (*db.ScheduledTask, error) {
	if _, err := s.parser.Parse(schedule); err != nil {
		return nil, apperr.Invalid("invalid cron schedule %q: %v", schedule, err)
	}

	task, err := s.tasks.Create(ctx, name, urls, schedule, respectRobots)
	if err != nil {
		return nil, err
	}
	if err := s.schedule(*task); err != nil {
		return nil, err
	}

	s.log.Info("Task created", logger.Uint("task_id", task.ID), logger.String("schedule", schedule))
	return task, nil
}

func (s *Scheduler) List(ctx context.Context) ([]db.ScheduledTask, error) {
	return s.tasks.List(ctx, false)
}

// NextRun reports when a task fires next. Paused tasks have no next run.
func (s *Scheduler) NextRun(id uint) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if entry.Next.IsZero() {
		return entry.Schedule.Next(s.now()), true
	}
	return entry.Next, true
}

func (s *Scheduler) Pause(ctx context.Context, id uint) error {
	if err := s.tasks.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.unschedule(id)
	s.log.Info("Task paused", logger.Uint("task_id", id))
	return nil
}

func (s *Scheduler) Resume(ctx context.Context, id uint) error {
	if err := s.tasks.SetActive(ctx, id, true); err != nil {
		return err
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.schedule(*task); err != nil {
		return err
	}
	s.log.Info("Task resumed", logger.Uint("task_id", id))
	return nil
}

func (s *Scheduler) Delete(ctx context.Context, id uint) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.unschedule(id)
	s.log.Info("Task deleted", logger.Uint("task_id", id))
	return nil
}

// RunNow runs a task immediately, paused or not, and waits for the batch
func (s *Scheduler) RunNow(ctx context.Context, id uint) (*crawler.BatchReport, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, *task)
}

func (s *Scheduler) schedule(task db.ScheduledTask) error {
	sched, err := s.parser.Parse(task.Schedule)
	if err != nil {
		return apperr.Invalid("invalid cron schedule %q: %v", task.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[task.ID]; ok {
		s.cron.Remove(old)
	}

	taskID := task.ID
	s.entries[taskID] = s.cron.Schedule(sched, cron.FuncJob(func() { s.trigger(taskID) }))
	return nil
}

func (s *Scheduler) unschedule(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// trigger is the cron callback. Overlapping runs of one task are skipped.
func (s *Scheduler) trigger(id uint) {
	if s.ctx.Err() != nil {
		return
	}

	task, err := s.tasks.Get(s.ctx, id)
	if err != nil {
		s.metrics.ScheduledRuns.WithLabelValues("error").Inc()
		s.log.Error("Failed to load triggered task", logger.Uint("task_id", id), logger.Error(err))
		return
	}
	if !task.Active {
		return
	}

	if _, err := s.run(s.ctx, *task); err != nil {
		s.log.Error("Scheduled run failed", logger.Uint("task_id", id), logger.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, task db.ScheduledTask) (*crawler.BatchReport, error) {
	s.mu.Lock()
	if s.running[task.ID] {
		s.mu.Unlock()
		s.metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
		return nil, fmt.Errorf("task %d is already running: %w", task.ID, apperr.ErrConflict)
	}
	s.running[task.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, task.ID)
		s.mu.Unlock()
	}()

	startedAt := s.now()
	name := fmt.Sprintf("Scheduled_%s_%s", task.Name, startedAt.Format("20060102_150405"))

	report, err := s.runner.Run(ctx, name, task.URLList(), task.RespectRobots)
	if report == nil {
		s.metrics.ScheduledRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if markErr := s.tasks.MarkRun(context.WithoutCancel(ctx), task.ID, startedAt.UTC(), report.SessionID); markErr != nil {
		s.log.Error("Failed to record task run", logger.Uint("task_id", task.ID), logger.Error(markErr))
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.ScheduledRuns.WithLabelValues(result).Inc()
	s.log.Info("Scheduled run finished",
		logger.Uint("task_id", task.ID),
		logger.Uint("session_id", report.SessionID),
		logger.Int("successful", report.Successful),
		logger.Int("total", report.TotalURLs))

	return report, err
}
