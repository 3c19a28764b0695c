package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// staleReason is recorded on tasks failed by the janitor
const staleReason = "task abandoned: no progress before the stale timeout"

// Dispatcher queues a task for execution
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, taskID uuid.UUID) error
}

// MarkerReleaser clears every marker stamped by a task
type MarkerReleaser interface {
	ReleaseTaskMarkers(ctx context.Context, tenantID, taskID uuid.UUID) (int64, error)
}

// JanitorConfig holds janitor configuration
type JanitorConfig struct {
	Schedule      string        // robfig/cron spec, e.g. "@every 5m"
	StaleTimeout  time.Duration // running tasks with no saved progress for this long are failed
	PendingBatch  int           // pending tasks re-dispatched per sweep
	SweepDeadline time.Duration
}

// DefaultJanitorConfig returns default janitor configuration
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule:      "@every 5m",
		StaleTimeout:  2 * time.Hour,
		PendingBatch:  100,
		SweepDeadline: time.Minute,
	}
}

// Janitor fails export tasks stuck in running and re-dispatches pending tasks
// that never reached a worker
type Janitor struct {
	config     JanitorConfig
	tasks      export.TaskRepository
	markers    MarkerReleaser
	dispatcher Dispatcher
	events     shared.EventPublisher
	logger     *zap.Logger
	now        func() time.Time

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewJanitor creates a new janitor. events may be nil.
func NewJanitor(
	config JanitorConfig,
	tasks export.TaskRepository,
	markers MarkerReleaser,
	dispatcher Dispatcher,
	events shared.EventPublisher,
	logger *zap.Logger,
) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PendingBatch <= 0 {
		config.PendingBatch = DefaultJanitorConfig().PendingBatch
	}
	if config.SweepDeadline <= 0 {
		config.SweepDeadline = DefaultJanitorConfig().SweepDeadline
	}
	return &Janitor{
		config:     config,
		tasks:      tasks,
		markers:    markers,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// Start re-dispatches pending tasks left by a previous process and schedules
// the periodic sweep
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isRunning {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.config.Schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("%w: janitor schedule %q: %v", ErrInvalidConfig, j.config.Schedule, err)
	}

	if _, err := j.redispatchPending(ctx); err != nil {
		j.logger.Warn("Failed to recover pending export tasks", zap.Error(err))
	}

	c.Start()
	j.cron = c
	j.isRunning = true
	j.logger.Info("Export janitor started",
		zap.String("schedule", j.config.Schedule),
		zap.Duration("stale_timeout", j.config.StaleTimeout),
	)
	return nil
}

// Stop stops the schedule and waits for a running sweep
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return nil
	}
	j.isRunning = false
	c := j.cron
	j.mu.Unlock()

	select {
	case <-c.Stop().Done():
		j.logger.Info("Export janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepResult reports what one sweep did
type SweepResult struct {
	StaleFailed  int
	Redispatched int
}

// Sweep runs one janitor pass
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	ctx, cancel := context.WithTimeout(ctx, j.config.SweepDeadline)
	defer cancel()

	var result SweepResult
	var err error
	if j.config.StaleTimeout > 0 {
		result.StaleFailed, err = j.failStale(ctx)
		if err != nil {
			j.logger.Error("Failed to sweep stale export tasks", zap.Error(err))
		}
	}
	result.Redispatched, err = j.redispatchPending(ctx)
	if err != nil {
		j.logger.Error("Failed to re-dispatch pending export tasks", zap.Error(err))
	}

	if result.StaleFailed > 0 || result.Redispatched > 0 {
		j.logger.Info("Export janitor sweep",
			zap.Int("stale_failed", result.StaleFailed),
			zap.Int("redispatched", result.Redispatched),
		)
	}
	return result
}

// failStale fails running tasks that stopped saving progress. The cutoff is
// measured from the last save, never from the start of the run.
func (j *Janitor) failStale(ctx context.Context) (int, error) {
	stale, err := j.tasks.FindStale(ctx, j.now().Add(-j.config.StaleTimeout))
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, task := range stale {
		log := j.logger.With(
			zap.String("task_id", task.ID.String()),
			zap.String("tenant_id", task.TenantID.String()),
		)
		if err := task.Fail(staleReason); err != nil {
			continue
		}
		if err := j.tasks.SaveWithLock(ctx, task); err != nil {
			// the runner made progress in the meantime
			log.Debug("Stale export task changed concurrently", zap.Error(err))
			continue
		}
		failed++
		log.Warn("Stale export task failed",
			zap.Timep("started_at", task.StartedAt),
			zap.Int("processed", task.ProcessedCount),
		)

		if j.markers != nil {
			released, err := j.markers.ReleaseTaskMarkers(ctx, task.TenantID, task.ID)
			if err != nil {
				log.Error("Failed to release markers of stale export task", zap.Error(err))
			} else if released > 0 {
				log.Info("Released markers of stale export task", zap.Int64("released", released))
			}
		}

		events := task.GetDomainEvents()
		task.ClearDomainEvents()
		if j.events != nil && len(events) > 0 {
			if err := j.events.Publish(ctx, events...); err != nil {
				log.Warn("Failed to publish export task events", zap.Error(err))
			}
		}
	}
	return failed, nil
}

func (j *Janitor) redispatchPending(ctx context.Context) (int, error) {
	pending, err := j.tasks.FindPending(ctx, j.config.PendingBatch)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, task := range pending {
		if err := j.dispatcher.Dispatch(ctx, task.TenantID, task.ID); err != nil {
			j.logger.Warn("Failed to re-dispatch pending export task",
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
