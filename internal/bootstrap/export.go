// Package bootstrap assembles the export stack shared by the API server and
// the voucherctl command.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/voucher"
	"github.com/erp/voucher-export/internal/infrastructure/cache"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/erp/voucher-export/internal/infrastructure/event"
	"github.com/erp/voucher-export/internal/infrastructure/persistence"
	"github.com/erp/voucher-export/internal/infrastructure/scheduler"
	"github.com/erp/voucher-export/internal/infrastructure/storage"
	"github.com/erp/voucher-export/internal/infrastructure/tabular"
	"github.com/erp/voucher-export/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mode selects how submitted tasks are executed
type Mode int

const (
	// Pooled queues tasks on the worker pool and sweeps them with the janitor
	Pooled Mode = iota
	// Inline runs a task inside Submit, for one-shot command line use
	Inline
)

// ExportStack holds the wired export services and the background workers behind them
type ExportStack struct {
	Tasks         *persistence.GormExportTaskRepository
	Documents     *persistence.GormDocumentRepository
	Files         *storage.ExportFileStore
	Signals       cache.CancelSignalCloser
	Bus           *event.InMemoryEventBus
	Runner        *exportapp.BatchRunner
	Exports       *exportapp.ExportService
	Cancellations *exportapp.CancellationService

	// Pool and Janitor are nil in Inline mode
	Pool    *scheduler.ExportPool
	Janitor *scheduler.Janitor

	logger *zap.Logger
}

// NewExportStack wires the repositories, storage, cancel signals, event bus and
// services of the export engine on db
func NewExportStack(
	cfg *config.Config,
	db *gorm.DB,
	providers *telemetry.Providers,
	mode Mode,
	logger *zap.Logger,
) (*ExportStack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	plan := voucher.DefaultAccountPlan()
	if cfg.Export.AccountsFile != "" {
		loaded, err := config.LoadAccountPlan(cfg.Export.AccountsFile)
		if err != nil {
			return nil, err
		}
		plan = loaded
	}

	objects, err := storage.NewObjectStorage(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage: %w", err)
	}

	signals, err := cache.NewCancelSignal(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cancel signal: %w", err)
	}

	metrics, err := telemetry.NewExportMetrics(providers.Meter())
	if err != nil {
		_ = signals.Close()
		return nil, fmt.Errorf("failed to create export metrics: %w", err)
	}

	s := &ExportStack{
		Tasks:     persistence.NewGormExportTaskRepository(db),
		Documents: persistence.NewGormDocumentRepository(db),
		Signals:   signals,
		Bus:       event.NewInMemoryEventBus(logger, event.WithBusTracer(providers.Tracer())),
		logger:    logger,
	}
	s.Files = storage.NewExportFileStore(
		objects,
		persistence.NewGormExportFileRepository(db),
		cfg.Storage.Prefix,
		cfg.Storage.PresignExpiration,
		logger,
	)

	taskEvents := exportapp.NewTaskEventHandler(metrics, logger)
	s.Bus.Subscribe(taskEvents, taskEvents.EventTypes()...)
	journal := event.NewEventJournal(event.NewExportEventSerializer(), logger)
	s.Bus.Subscribe(journal, journal.EventTypes()...)

	s.Runner = exportapp.NewBatchRunner(exportapp.RunnerDeps{
		Tasks:     s.Tasks,
		Documents: s.Documents,
		Markers:   s.Documents,
		Engine:    voucher.NewEngine(voucher.NewClassifier(voucher.CounterpartPolicy(cfg.Export.UnknownCounterpart))),
		Generator: voucher.NewGenerator(plan),
		Writers:   tabular.Writers(),
		Files:     s.Files,
		Signals:   signals,
		Logger:    logger,
	},
		exportapp.WithPageSize(cfg.Export.PageSize),
		exportapp.WithProgressFlushEvery(cfg.Export.ProgressFlushEvery),
		exportapp.WithDocumentWorkers(cfg.Export.DocumentWorkers),
		exportapp.WithAuthorizer(export.PermissionAuthorizer{}),
		exportapp.WithEventPublisher(s.Bus),
		exportapp.WithMetrics(metrics),
		exportapp.WithTracer(providers.Tracer()),
		exportapp.WithProfileLabeler(telemetry.WithProfilingLabels),
	)

	var dispatcher exportapp.Dispatcher
	switch mode {
	case Inline:
		dispatcher = exportapp.DispatcherFunc(func(ctx context.Context, tenantID, taskID uuid.UUID) error {
			return s.Runner.Run(ctx, tenantID, taskID)
		})
	default:
		pool, err := scheduler.NewExportPool(scheduler.PoolConfig{
			Workers:   cfg.Export.MaxConcurrentTasks,
			QueueSize: cfg.Export.QueueSize,
		}, s.Runner, logger)
		if err != nil {
			_ = signals.Close()
			return nil, err
		}
		s.Pool = pool
		s.Janitor = scheduler.NewJanitor(scheduler.JanitorConfig{
			Schedule:     cfg.Export.JanitorSchedule,
			StaleTimeout: cfg.Export.StaleTaskTimeout,
		}, s.Tasks, s.Documents, pool, s.Bus, logger)
		dispatcher = pool
	}

	s.Exports = exportapp.NewExportService(exportapp.ExportServiceDeps{
		Tasks:         s.Tasks,
		Documents:     s.Documents,
		Files:         s.Files,
		Signals:       signals,
		Dispatcher:    dispatcher,
		Events:        s.Bus,
		DefaultFormat: export.Format(cfg.Export.DefaultFormat),
		Logger:        logger,
	})
	s.Cancellations = exportapp.NewCancellationService(s.Documents, export.PermissionAuthorizer{}, metrics, logger)

	return s, nil
}

// Start starts the event bus and, in Pooled mode, the workers and the janitor
func (s *ExportStack) Start(ctx context.Context) error {
	if err := s.Bus.Start(ctx); err != nil {
		return err
	}
	if s.Pool != nil {
		if err := s.Pool.Start(ctx); err != nil {
			return fmt.Errorf("failed to start export pool: %w", err)
		}
	}
	if s.Janitor != nil {
		if err := s.Janitor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start export janitor: %w", err)
		}
	}
	return nil
}

// Stop stops the janitor before the pool so no task is re-dispatched into a
// draining queue, then releases the cancel signal store
func (s *ExportStack) Stop(ctx context.Context) error {
	var errs []error
	if s.Janitor != nil {
		errs = append(errs, s.Janitor.Stop(ctx))
	}
	if s.Pool != nil {
		errs = append(errs, s.Pool.Stop(ctx))
	}
	errs = append(errs, s.Bus.Stop(ctx), s.Signals.Close())
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("Export stack stopped with errors", zap.Error(err))
		return err
	}
	return nil
}
