// Package scheduler runs export tasks in the background: a bounded worker
// pool executes dispatched tasks and a cron janitor recovers abandoned ones.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskRunner executes one export task to a terminal state
type TaskRunner interface {
	Run(ctx context.Context, tenantID, taskID uuid.UUID) error
}

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   4,
		QueueSize: 100,
	}
}

type job struct {
	tenantID uuid.UUID
	taskID   uuid.UUID
}

// ExportPool runs dispatched export tasks on a fixed number of workers. A task
// that is already queued or running is not queued again.
type ExportPool struct {
	config PoolConfig
	runner TaskRunner
	logger *zap.Logger

	jobs      chan job
	inflight  map[uuid.UUID]struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewExportPool creates a new export pool
func NewExportPool(config PoolConfig, runner TaskRunner, logger *zap.Logger) (*ExportPool, error) {
	if config.Workers <= 0 || config.QueueSize <= 0 {
		return nil, fmt.Errorf("%w: workers and queue size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportPool{
		config:   config,
		runner:   runner,
		logger:   logger,
		jobs:     make(chan job, config.QueueSize),
		inflight: make(map[uuid.UUID]struct{}),
	}, nil
}

// Start starts the workers
func (p *ExportPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Export pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
	return nil
}

// Stop interrupts running tasks and waits for the workers to exit. An
// interrupted task fails with a shutdown reason rather than being cancelled.
// Queued tasks stay pending in the database and are picked up by the janitor
// on the next start.
func (p *ExportPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Export pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Export pool stop timed out")
		return ctx.Err()
	}
}

// Dispatch queues a task. It never blocks: a full queue returns ErrJobQueueFull
// and the task stays pending.
func (p *ExportPool) Dispatch(ctx context.Context, tenantID, taskID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, ok := p.inflight[taskID]; ok {
		return nil
	}

	select {
	case p.jobs <- job{tenantID: tenantID, taskID: taskID}:
		p.inflight[taskID] = struct{}{}
		p.logger.Debug("Export task queued", zap.String("task_id", taskID.String()))
		return nil
	default:
		return ErrJobQueueFull
	}
}

// InFlight returns the number of queued or running tasks
func (p *ExportPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *ExportPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.process(ctx, j, workerID)
		}
	}
}

func (p *ExportPool) process(ctx context.Context, j job, workerID int) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, j.taskID)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Export task panicked",
				zap.Int("worker_id", workerID),
				zap.String("task_id", j.taskID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	log := p.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("task_id", j.taskID.String()),
		zap.String("tenant_id", j.tenantID.String()),
	)
	log.Debug("Export task picked up")

	if err := p.runner.Run(ctx, j.tenantID, j.taskID); err != nil {
		log.Error("Export task run failed", zap.Error(err))
		return
	}
	log.Debug("Export task run finished")
}
