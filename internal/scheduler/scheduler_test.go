package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/service"
)

type runCall struct {
	name          string
	urls          []string
	respectRobots bool
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	next  uint
}

func (f *fakeRunner) Run(ctx context.Context, name string, urls []string, respectRobots bool) (*crawler.BatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{name: name, urls: urls, respectRobots: respectRobots})
	f.next++
	return &crawler.BatchReport{SessionID: 100 + f.next, TotalURLs: len(urls), Successful: len(urls)}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T) (*Scheduler, *service.TaskStore, *fakeRunner) {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "tasks.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := service.NewTaskStore(conn)
	runner := &fakeRunner{}
	s := New(store, runner, logger.NewNop(), nil)
	t.Cleanup(s.Stop)
	return s, store, runner
}

func TestScheduler_CreateValidatesSchedule(t *testing.T) {
	s, store, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "nightly", []string{"https://a.example"}, "every day at noon", true)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	tasks, err := store.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = s.Create(ctx, "nightly", nil, "0 2 * * *", true)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = s.Create(ctx, "nightly", []string{" ", ""}, "0 2 * * *", true)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, s.entries)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s, store, runner := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	task, err := s.Create(ctx, "news", []string{"https://a.example", "https://b.example"}, "*/5 * * * *", false)
	require.NoError(t, err)
	assert.True(t, task.Active)

	next, ok := s.NextRun(task.ID)
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))

	require.NoError(t, s.Pause(ctx, task.ID))
	_, ok = s.NextRun(task.ID)
	assert.False(t, ok)
	paused, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, paused.Active)

	require.NoError(t, s.Resume(ctx, task.ID))
	_, ok = s.NextRun(task.ID)
	assert.True(t, ok)

	report, err := s.RunNow(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 1, runner.count())
	call := runner.calls[0]
	assert.True(t, strings.HasPrefix(call.name, "Scheduled_news_"), call.name)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, call.urls)
	assert.False(t, call.respectRobots)

	stored, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSessionID)
	assert.Equal(t, report.SessionID, *stored.LastSessionID)
	assert.NotNil(t, stored.LastRunAt)

	require.NoError(t, s.Delete(ctx, task.ID))
	_, ok = s.NextRun(task.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Delete(ctx, task.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, s.Pause(ctx, task.ID), apperr.ErrNotFound)
	_, err = s.RunNow(ctx, task.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScheduler_StartLoadsActiveTasks(t *testing.T) {
	s, store, _ := newTestScheduler(t)
	ctx := context.Background()

	active, err := store.Create(ctx, "active", []string{"https://a.example"}, "0 * * * *", true)
	require.NoError(t, err)
	paused, err := store.Create(ctx, "paused", []string{"https://b.example"}, "0 * * * *", true)
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, paused.ID, false))

	require.NoError(t, s.Start(ctx))

	_, ok := s.NextRun(active.ID)
	assert.True(t, ok)
	_, ok = s.NextRun(paused.ID)
	assert.False(t, ok)
}

func TestScheduler_TriggerSkipsPausedTasks(t *testing.T) {
	s, store, runner := newTestScheduler(t)
	ctx := context.Background()

	task, err := store.Create(ctx, "t", []string{"https://a.example"}, "0 * * * *", true)
	require.NoError(t, err)

	s.trigger(task.ID)
	assert.Equal(t, 1, runner.count())

	require.NoError(t, store.SetActive(ctx, task.ID, false))
	s.trigger(task.ID)
	assert.Equal(t, 1, runner.count())
}

func TestScheduler_CronFires(t *testing.T) {
	s, _, runner := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	_, err := s.Create(ctx, "fast", []string{"https://a.example"}, "@every 1s", true)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return runner.count() > 0 }, 5*time.Second, 50*time.Millisecond)
}
