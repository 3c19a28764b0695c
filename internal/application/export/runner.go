package exportapp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/voucher"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Calculator computes the calculation result of one document
type Calculator interface {
	Compute(doc *settlement.Document) voucher.CalculationResult
}

// EntryGenerator maps a calculation result to voucher entries
type EntryGenerator interface {
	Generate(ref voucher.DocumentRef, result voucher.CalculationResult) ([]voucher.Entry, error)
}

// RunnerDeps holds the collaborators of a BatchRunner
type RunnerDeps struct {
	Tasks     export.TaskRepository
	Documents export.DocumentSource
	Markers   export.MarkerStore
	Engine    Calculator
	Generator EntryGenerator
	Writers   []export.TableWriter
	Files     export.FileStore
	Signals   export.CancelSignal
	Logger    *zap.Logger
}

// RunnerOption configures a BatchRunner
type RunnerOption func(*BatchRunner)

// WithPageSize sets how many documents are loaded per query
func WithPageSize(n int) RunnerOption {
	return func(r *BatchRunner) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithProgressFlushEvery sets how many documents are processed between progress saves
func WithProgressFlushEvery(n int) RunnerOption {
	return func(r *BatchRunner) {
		if n > 0 {
			r.flushEvery = n
		}
	}
}

// WithDocumentWorkers computes up to n documents of a page in parallel.
// Entries are still emitted in document order.
func WithDocumentWorkers(n int) RunnerOption {
	return func(r *BatchRunner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithAuthorizer sets the per-document authorization predicate
func WithAuthorizer(a export.Authorizer) RunnerOption {
	return func(r *BatchRunner) {
		r.authorizer = a
	}
}

// WithEventPublisher publishes task lifecycle events
func WithEventPublisher(p shared.EventPublisher) RunnerOption {
	return func(r *BatchRunner) {
		r.events = p
	}
}

// WithMetrics records document outcomes
func WithMetrics(m Metrics) RunnerOption {
	return func(r *BatchRunner) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for run spans
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *BatchRunner) {
		r.tracer = t
	}
}

// ProfileLabeler runs fn with profiling labels attached to its CPU samples
type ProfileLabeler func(ctx context.Context, labels map[string]string, fn func(context.Context))

// WithProfileLabeler labels the samples of each run by type code and format
func WithProfileLabeler(l ProfileLabeler) RunnerOption {
	return func(r *BatchRunner) {
		if l != nil {
			r.labeler = l
		}
	}
}

func unlabeled(ctx context.Context, _ map[string]string, fn func(context.Context)) {
	fn(ctx)
}

// BatchRunner drives one export task from pending to a terminal state
type BatchRunner struct {
	tasks      export.TaskRepository
	documents  export.DocumentSource
	markers    export.MarkerStore
	engine     Calculator
	generator  EntryGenerator
	writers    map[export.Format]export.TableWriter
	files      export.FileStore
	signals    export.CancelSignal
	authorizer export.Authorizer
	events     shared.EventPublisher
	metrics    Metrics
	tracer     trace.Tracer
	labeler    ProfileLabeler
	logger     *zap.Logger

	pageSize   int
	flushEvery int
	workers    int
}

// NewBatchRunner creates a batch runner
func NewBatchRunner(deps RunnerDeps, opts ...RunnerOption) *BatchRunner {
	r := &BatchRunner{
		tasks:      deps.Tasks,
		documents:  deps.Documents,
		markers:    deps.Markers,
		engine:     deps.Engine,
		generator:  deps.Generator,
		writers:    make(map[export.Format]export.TableWriter, len(deps.Writers)),
		files:      deps.Files,
		signals:    deps.Signals,
		authorizer: export.AllowAll{},
		metrics:    NopMetrics{},
		tracer:     otel.Tracer("voucher-export/runner"),
		labeler:    unlabeled,
		logger:     deps.Logger,
		pageSize:   200,
		flushEvery: 50,
		workers:    1,
	}
	for _, w := range deps.Writers {
		r.writers[w.Format()] = w
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runOutcome int

const (
	outcomeDone runOutcome = iota
	outcomeCancelled
	// the task reached a terminal state outside this run
	outcomeStopped
	// the worker context ended, usually on service shutdown
	outcomeInterrupted
)

const interruptedReason = "export interrupted by service shutdown"

type taskRun struct {
	task       *export.ExportTask
	actor      export.Actor
	log        *zap.Logger
	records    []export.Record
	claimed    []uuid.UUID
	voucherNo  int
	sinceFlush int
}

type prepared struct {
	entries []voucher.Entry
	err     error
}

// Run processes the task's documents and leaves the task completed, failed or cancelled.
// Tasks that are no longer pending are skipped. The returned error is the
// infrastructure fault that failed the task, if any.
func (r *BatchRunner) Run(ctx context.Context, tenantID, taskID uuid.UUID) error {
	task, err := r.tasks.FindByID(ctx, tenantID, taskID)
	if err != nil {
		return fmt.Errorf("failed to load export task: %w", err)
	}
	log := r.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("tenant_id", task.TenantID.String()),
		zap.String("type_code", task.TypeCode.String()),
	)
	if task.Status != export.TaskStatusPending {
		log.Info("skipping export task", zap.String("status", string(task.Status)))
		return nil
	}

	if err := task.Start(); err != nil {
		return err
	}
	if err := r.tasks.SaveWithLock(ctx, task); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			log.Info("export task was picked up or cancelled concurrently")
			return nil
		}
		return fmt.Errorf("failed to start export task: %w", err)
	}

	ctx, span := r.tracer.Start(ctx, "export.run", trace.WithAttributes(
		attribute.String("export.task_id", task.ID.String()),
		attribute.String("export.type_code", task.TypeCode.String()),
		attribute.Int64("export.expected_count", task.ExpectedCount),
	))
	defer span.End()

	log.Info("export task started", zap.Int64("expected_count", task.ExpectedCount))

	run := &taskRun{task: task, actor: task.Actor(), log: log}
	var outcome runOutcome
	r.labeler(ctx, map[string]string{
		"operation": "export.run",
		"type_code": task.TypeCode.String(),
		"format":    string(task.Format),
		"tenant_id": task.TenantID.String(),
	}, func(ctx context.Context) {
		outcome, err = r.process(ctx, run)
	})
	err = r.finish(ctx, run, outcome, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("export.status", string(task.Status)),
		attribute.Int("export.succeeded", task.SucceededCount),
		attribute.Int("export.failed", task.FailedCount),
	)
	return err
}

func (r *BatchRunner) process(ctx context.Context, run *taskRun) (runOutcome, error) {
	if len(run.task.Conditions) == 0 {
		return outcomeDone, export.NewValidationError("conditions", "task has no filter conditions")
	}
	conditions, err := settlement.ParseConditions(run.task.Conditions)
	if err != nil {
		return outcomeDone, export.NewValidationError("conditions", err.Error())
	}
	query := settlement.DocumentQuery{
		TenantID:   run.task.TenantID,
		TypeCode:   run.task.TypeCode,
		Conditions: conditions,
	}

	var cursor *settlement.PageCursor
	for {
		if outcome, halt := r.checkHalt(ctx, run); halt {
			return outcome, nil
		}
		docs, err := r.documents.FindPage(ctx, query, cursor, r.pageSize)
		if err != nil {
			return outcomeDone, export.NewInfrastructureError("load documents", err)
		}
		if len(docs) == 0 {
			return outcomeDone, nil
		}

		results := r.prepareAll(ctx, run, docs)
		for i, doc := range docs {
			if outcome, halt := r.checkHalt(ctx, run); halt {
				return outcome, nil
			}
			if err := r.commit(ctx, run, doc, results[i]); err != nil {
				return outcomeDone, err
			}
			stopped, err := r.maybeFlush(ctx, run)
			if err != nil {
				return outcomeDone, err
			}
			if stopped {
				return outcomeStopped, nil
			}
		}

		if len(docs) < r.pageSize {
			return outcomeDone, nil
		}
		cursor = settlement.CursorAfter(docs[len(docs)-1])
	}
}

// prepareAll computes the entries of a page, keeping results in document order
func (r *BatchRunner) prepareAll(ctx context.Context, run *taskRun, docs []*settlement.Document) []prepared {
	results := make([]prepared, len(docs))
	if r.workers <= 1 {
		for i, doc := range docs {
			results[i] = r.prepare(ctx, run, doc)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = r.prepare(ctx, run, doc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// prepare runs the per-document checks and computes its voucher without side effects
func (r *BatchRunner) prepare(ctx context.Context, run *taskRun, doc *settlement.Document) prepared {
	if !r.authorizer.Authorize(ctx, run.actor, export.ActionExport, doc) {
		return prepared{err: &export.ForbiddenError{DocumentID: doc.ID}}
	}
	if doc.ExportMarker.IsExported() && !run.task.Reexport {
		return prepared{err: &export.AlreadyExportedError{DocumentID: doc.ID, DocumentRef: doc.Reference()}}
	}
	if err := doc.Validate(); err != nil {
		return prepared{err: export.NewValidationError("", err.Error())}
	}

	result := r.engine.Compute(doc)
	entries, err := r.generator.Generate(voucher.RefOf(doc), result)
	if err != nil {
		return prepared{err: err}
	}
	return prepared{entries: entries}
}

// commit claims the document's marker and accumulates its entries
func (r *BatchRunner) commit(ctx context.Context, run *taskRun, doc *settlement.Document, p prepared) error {
	if p.err != nil {
		r.recordFailure(ctx, run, doc, p.err)
		return nil
	}

	ok, err := r.markers.ClaimExportMarker(ctx, settlement.MarkerClaim{
		TenantID:        doc.TenantID,
		DocumentID:      doc.ID,
		ExpectedVersion: doc.Version,
		ExportedAt:      time.Now(),
		ExportedBy:      run.actor.UserID,
		TaskID:          run.task.ID,
		TypeCode:        doc.TypeCode,
		Reexport:        run.task.Reexport,
	})
	if err != nil {
		return export.NewInfrastructureError("claim export marker", err)
	}
	if !ok {
		r.recordFailure(ctx, run, doc, &export.AlreadyExportedError{DocumentID: doc.ID, DocumentRef: doc.Reference()})
		return nil
	}

	run.claimed = append(run.claimed, doc.ID)
	run.voucherNo++
	run.records = append(run.records, export.RecordsOf(run.voucherNo, doc.DocumentDate, p.entries)...)
	run.task.RecordSuccess(len(p.entries))
	r.metrics.DocumentProcessed(ctx, run.task.TypeCode.String(), OutcomeExported)
	return nil
}

func (r *BatchRunner) recordFailure(ctx context.Context, run *taskRun, doc *settlement.Document, err error) {
	run.task.RecordFailure(export.ErrorDetail{
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		Code:           export.CodeOf(err),
		Message:        err.Error(),
	})
	r.metrics.DocumentProcessed(ctx, run.task.TypeCode.String(), OutcomeFailed)
	run.log.Warn("document skipped",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_number", doc.DocumentNumber),
		zap.String("code", export.CodeOf(err)),
		zap.Error(err),
	)
}

// checkHalt reports whether the run must stop before the next document. A
// closed worker context interrupts the run; only the cancel signal cancels it.
func (r *BatchRunner) checkHalt(ctx context.Context, run *taskRun) (runOutcome, bool) {
	if ctx.Err() != nil {
		return outcomeInterrupted, true
	}
	if r.signals == nil {
		return outcomeDone, false
	}
	requested, err := r.signals.IsRequested(ctx, run.task.ID)
	if err != nil {
		run.log.Warn("failed to read cancel signal", zap.Error(err))
		return outcomeDone, false
	}
	if requested {
		return outcomeCancelled, true
	}
	return outcomeDone, false
}

// maybeFlush saves progress every flushEvery documents. It reports true when the
// task was finished by someone else.
func (r *BatchRunner) maybeFlush(ctx context.Context, run *taskRun) (bool, error) {
	run.sinceFlush++
	if run.sinceFlush < r.flushEvery {
		return false, nil
	}
	run.sinceFlush = 0
	return r.save(ctx, run, "save progress")
}

// save writes the task with its version check. On a conflict the stored task is
// reloaded: if it is terminal the run stops, otherwise the save is retried once.
func (r *BatchRunner) save(ctx context.Context, run *taskRun, op string) (bool, error) {
	err := r.tasks.SaveWithLock(ctx, run.task)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, shared.ErrConcurrencyConflict) {
		return false, export.NewInfrastructureError(op, err)
	}

	current, err := r.tasks.FindByID(ctx, run.task.TenantID, run.task.ID)
	if err != nil {
		return false, export.NewInfrastructureError(op, err)
	}
	if current.IsTerminal() {
		run.log.Warn("export task was finished elsewhere", zap.String("status", string(current.Status)))
		return true, nil
	}
	run.task.Version = current.Version
	if err := r.tasks.SaveWithLock(ctx, run.task); err != nil {
		return false, export.NewInfrastructureError(op, err)
	}
	return false, nil
}

// finish moves the task to its terminal state, compensates markers of unfinished
// runs and publishes the lifecycle event
func (r *BatchRunner) finish(ctx context.Context, run *taskRun, outcome runOutcome, err error) error {
	task := run.task
	if outcome == outcomeDone && err == nil {
		err = r.complete(ctx, run)
	}

	// final writes must outlive a cancelled worker context
	final := context.WithoutCancel(ctx)

	switch {
	case outcome == outcomeStopped:
		r.releaseMarkers(final, run)
		return nil
	case outcome == outcomeCancelled:
		_ = task.Cancel()
	case outcome == outcomeInterrupted, err != nil && ctx.Err() != nil:
		run.log.Warn("export task interrupted", zap.NamedError("cause", err))
		err = nil
		_ = task.Fail(interruptedReason)
	case err != nil:
		_ = task.Fail(err.Error())
	}

	if task.Status != export.TaskStatusCompleted {
		r.releaseMarkers(final, run)
	}

	stopped, saveErr := r.save(final, run, "save task")
	if saveErr != nil {
		run.log.Error("failed to save finished export task", zap.Error(saveErr))
		if err == nil {
			err = saveErr
		}
	}
	if r.signals != nil {
		if clearErr := r.signals.Clear(final, task.ID); clearErr != nil {
			run.log.Warn("failed to clear cancel signal", zap.Error(clearErr))
		}
	}
	if !stopped && saveErr == nil {
		r.publish(final, run)
	}

	fields := []zap.Field{
		zap.String("status", string(task.Status)),
		zap.Int("processed", task.ProcessedCount),
		zap.Int("succeeded", task.SucceededCount),
		zap.Int("failed", task.FailedCount),
		zap.Int("entries", task.EntryCount),
		zap.Duration("duration", task.Duration()),
	}
	if err != nil {
		run.log.Error("export task failed", append(fields, zap.Error(err))...)
		return err
	}
	run.log.Info("export task finished", fields...)
	return nil
}

// complete writes and stores the file and marks the task completed
func (r *BatchRunner) complete(ctx context.Context, run *taskRun) error {
	task := run.task
	writer, ok := r.writers[task.Format]
	if !ok {
		return export.NewInfrastructureError("write file", fmt.Errorf("no writer for format %s", task.Format))
	}

	data, err := writer.Write(run.records)
	if err != nil {
		return export.NewInfrastructureError("write file", err)
	}

	fileID, err := r.files.Save(ctx, export.StoredFile{
		TenantID:    task.TenantID,
		CreatedBy:   run.actor.UserID,
		Name:        fileName(task.DisplayName, writer.Extension()),
		Remark:      task.Remark,
		ContentType: writer.ContentType(),
		Data:        data,
	})
	if err != nil {
		return export.NewInfrastructureError("store file", err)
	}

	r.metrics.EntriesEmitted(ctx, task.TypeCode.String(), len(run.records))
	return task.Complete(fileID)
}

func (r *BatchRunner) releaseMarkers(ctx context.Context, run *taskRun) {
	if len(run.claimed) == 0 {
		return
	}
	released, err := r.markers.ReleaseExportMarkers(ctx, run.task.TenantID, run.task.ID, run.claimed)
	if err != nil {
		run.log.Error("failed to release export markers",
			zap.Int("claimed", len(run.claimed)),
			zap.Error(err),
		)
		return
	}
	run.log.Info("export markers released", zap.Int64("released", released))
}

func (r *BatchRunner) publish(ctx context.Context, run *taskRun) {
	events := run.task.GetDomainEvents()
	run.task.ClearDomainEvents()
	if r.events == nil || len(events) == 0 {
		return
	}
	if err := r.events.Publish(ctx, events...); err != nil {
		run.log.Warn("failed to publish export task events", zap.Error(err))
	}
}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func fileName(displayName, ext string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(displayName, "_"), "_")
	if name == "" {
		name = "vouchers"
	}
	return name + "." + ext
}
