package exportapp

import (
	"context"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CancellationService reverses export markers over a window of export times
type CancellationService struct {
	markers    export.MarkerStore
	authorizer export.Authorizer
	metrics    Metrics
	logger     *zap.Logger
}

// NewCancellationService creates a new CancellationService. A nil authorizer
// allows every document of the actor's tenant.
func NewCancellationService(markers export.MarkerStore, authorizer export.Authorizer, metrics Metrics, logger *zap.Logger) *CancellationService {
	if authorizer == nil {
		authorizer = export.AllowAll{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CancellationService{
		markers:    markers,
		authorizer: authorizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Cancel clears the export marker of every document of the type exported within
// [WindowStart, WindowEnd] that matches the extra filter. Each document is cleared
// in its own transaction; failures are counted and never abort the batch.
func (s *CancellationService) Cancel(ctx context.Context, cmd CancelExportCommand) (*CancelExportResult, error) {
	typeCode, err := settlement.ParseTypeCode(cmd.TypeCode)
	if err != nil {
		return nil, export.NewValidationError("type_code", err.Error())
	}
	if cmd.WindowStart.IsZero() || cmd.WindowEnd.IsZero() {
		return nil, export.NewValidationError("window", "window start and end are required")
	}
	if cmd.WindowEnd.Before(cmd.WindowStart) {
		return nil, export.NewValidationError("window", "window end is before window start")
	}
	conditions, err := settlement.ParseConditions(cmd.ExtraFilter)
	if err != nil {
		return nil, export.NewValidationError("extra_filter", err.Error())
	}

	query := settlement.DocumentQuery{
		TenantID:   cmd.Actor.TenantID,
		TypeCode:   typeCode,
		Conditions: append(conditions, settlement.ExportWindow(cmd.WindowStart, cmd.WindowEnd)),
	}
	docs, err := s.markers.FindHeaders(ctx, query)
	if err != nil {
		return nil, export.NewInfrastructureError("find exported documents", err)
	}

	result := &CancelExportResult{
		FailedIDs: make([]uuid.UUID, 0),
		Failures:  make([]CancelFailure, 0),
	}
	now := time.Now()
	for _, doc := range docs {
		if err := s.cancelOne(ctx, cmd, doc, now); err != nil {
			result.FailedCount++
			result.FailedIDs = append(result.FailedIDs, doc.ID)
			result.Failures = append(result.Failures, CancelFailure{
				DocumentID:     doc.ID,
				DocumentNumber: doc.DocumentNumber,
				Code:           export.CodeOf(err),
				Reason:         err.Error(),
			})
			continue
		}
		result.SuccessCount++
	}

	s.metrics.MarkersCleared(ctx, typeCode.String(), result.SuccessCount, result.FailedCount)
	s.logger.Info("export cancellation finished",
		zap.String("tenant_id", cmd.Actor.TenantID.String()),
		zap.String("type_code", typeCode.String()),
		zap.Time("window_start", cmd.WindowStart),
		zap.Time("window_end", cmd.WindowEnd),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

func (s *CancellationService) cancelOne(ctx context.Context, cmd CancelExportCommand, doc *settlement.Document, now time.Time) error {
	if !s.authorizer.Authorize(ctx, cmd.Actor, export.ActionCancel, doc) {
		return &export.ForbiddenError{DocumentID: doc.ID}
	}
	cleared, err := s.markers.ClearExportMarker(ctx, settlement.MarkerReversal{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		TypeCode:   doc.TypeCode,
		Reason:     cmd.Reason,
		ReversedBy: cmd.Actor.UserID,
		ReversedAt: now,
	})
	if err != nil {
		s.logger.Error("failed to clear export marker",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
		return export.NewInfrastructureError("clear export marker", err)
	}
	if !cleared {
		return &export.CancellationNotFoundError{DocumentID: doc.ID}
	}
	return nil
}
