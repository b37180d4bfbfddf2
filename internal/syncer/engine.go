// Package syncer runs the background cycle that pulls projects and tasks
// from upstream, renders them, and publishes fresh cache snapshots.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kodcaldav/kodcaldav/internal/cache"
	"github.com/kodcaldav/kodcaldav/internal/codec"
	"github.com/kodcaldav/kodcaldav/internal/upstream"
)

// Options configures an Engine
type Options struct {
	// Interval is the delay between sync cycles
	Interval time.Duration
	// MaxRetries bounds the attempts per upstream fetch
	MaxRetries int
	// RetryDelay is the base backoff delay, doubled per attempt
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Engine owns the sync loop. One cycle runs at a time; ticks that arrive
// while a cycle is still running are dropped.
type Engine struct {
	client     upstream.Client
	store      *cache.Store
	logger     *slog.Logger
	interval   time.Duration
	maxRetries int
	retryDelay time.Duration

	cron *cron.Cron
}

// New creates an engine publishing into store
func New(client upstream.Client, store *cache.Store, opts Options) *Engine {
	e := &Engine{
		client:     client,
		store:      store,
		logger:     opts.Logger,
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.interval <= 0 {
		e.interval = 5 * time.Minute
	}
	if e.maxRetries <= 0 {
		e.maxRetries = 3
	}
	if e.retryDelay <= 0 {
		e.retryDelay = time.Minute
	}
	return e
}

// Start runs one eager cycle, then schedules periodic cycles until ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.RunCycle(ctx); err != nil {
		e.logger.Error("initial sync failed", "error", err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{e.logger})))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", e.interval), func() {
		if err := e.RunCycle(ctx); err != nil {
			e.logger.Error("sync cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}

	c.Start()
	e.cron = c
	e.logger.Info("sync engine started", "interval", e.interval)
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish
func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}

// RunCycle performs one full sync pass and publishes a snapshot.
//
// Per-project failures do not fail the cycle: the project's previous
// calendar is carried forward marked stale. A failing project listing
// fails the cycle after re-publishing the previous calendars as stale.
func (e *Engine) RunCycle(ctx context.Context) error {
	started := time.Now()

	projects, err := e.listProjects(ctx)
	if err != nil {
		e.markAllStale(started)
		return fmt.Errorf("list projects: %w", err)
	}

	prev := e.store.Load()
	calendars := make(map[string]*cache.Calendar, len(projects))

	for _, project := range projects {
		cal, err := e.buildCalendar(ctx, project, started)
		if err != nil {
			if prevCal, ok := prev.Calendar(project.ID); ok {
				e.logger.Warn("carrying forward stale calendar",
					"project", project.ID, "error", err)
				calendars[project.ID] = prevCal.CarryForward(started)
			} else {
				e.logger.Warn("skipping unsynced project",
					"project", project.ID, "error", err)
			}
			continue
		}
		calendars[project.ID] = cal
	}

	snap := e.store.Publish(calendars, started)
	e.logger.Info("sync cycle complete",
		"seq", snap.Seq,
		"projects", len(calendars),
		"elapsed", time.Since(started))
	return nil
}

// markAllStale republishes every current calendar as stale so clients
// keep getting data while its age is visible.
func (e *Engine) markAllStale(now time.Time) {
	prev := e.store.Load()
	if len(prev.Calendars) == 0 {
		return
	}
	calendars := make(map[string]*cache.Calendar, len(prev.Calendars))
	for id, cal := range prev.Calendars {
		calendars[id] = cal.CarryForward(now)
	}
	e.store.Publish(calendars, prev.SyncedAt)
}

func (e *Engine) listProjects(ctx context.Context) ([]upstream.Project, error) {
	var projects []upstream.Project
	err := e.retry(ctx, "list projects", func() error {
		var err error
		projects, err = e.client.ListProjects(ctx)
		return err
	})
	return projects, err
}

func (e *Engine) buildCalendar(ctx context.Context, project upstream.Project, now time.Time) (*cache.Calendar, error) {
	var tasks []upstream.Task
	err := e.retry(ctx, "list tasks", func() error {
		var err error
		tasks, err = e.client.ListTasks(ctx, project.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	cal := &cache.Calendar{
		ProjectID:   project.ID,
		DisplayName: project.Name,
		Description: project.Description,
		LastSynced:  now,
	}

	for _, task := range tasks {
		data, err := codec.EncodeTask(project, task)
		if err != nil {
			return nil, fmt.Errorf("encode task %s: %w", task.ID, err)
		}
		cal.Events = append(cal.Events, cache.Event{
			TaskID:       task.ID,
			Summary:      task.Title,
			Component:    codec.ComponentFor(task),
			Start:        task.Start,
			Due:          task.Due,
			LastModified: task.ModifiedAt,
			ETag:         cache.ETagFor(data),
			Data:         data,
		})
	}
	sort.Slice(cal.Events, func(i, j int) bool {
		return cal.Events[i].TaskID < cal.Events[j].TaskID
	})

	aggregate, err := codec.EncodeCalendar(project, tasks)
	if err != nil {
		return nil, fmt.Errorf("encode calendar %s: %w", project.ID, err)
	}
	cal.Aggregate = aggregate
	cal.AggregateETag = cache.ETagFor(aggregate)

	return cal, nil
}

// retry runs fn up to maxRetries times with exponential backoff. Only
// unavailability is retried; auth and data errors fail immediately.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.retryDelay << (attempt - 1)
			if limit := e.retryDelay * 8; delay > limit {
				delay = limit
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, upstream.ErrUnavailable) {
			return err
		}
		e.logger.Warn("upstream fetch failed", "op", op, "attempt", attempt+1, "error", err)
	}
	return err
}

// cronLogger adapts slog to the cron logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
