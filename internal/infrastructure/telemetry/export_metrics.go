package telemetry

import (
	"context"
	"fmt"
	"time"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ensure ExportMetrics implements exportapp.Metrics
var _ exportapp.Metrics = (*ExportMetrics)(nil)

// ExportMetrics records export measurements as OpenTelemetry instruments
type ExportMetrics struct {
	documents    metric.Int64Counter
	entries      metric.Int64Counter
	tasks        metric.Int64Counter
	taskDuration metric.Float64Histogram
	markers      metric.Int64Counter
}

// NewExportMetrics creates the export instruments on the meter
func NewExportMetrics(meter metric.Meter) (*ExportMetrics, error) {
	m := &ExportMetrics{}
	var err error

	if m.documents, err = meter.Int64Counter("voucher_export_documents_total",
		metric.WithDescription("Documents processed by export tasks, by outcome"),
		metric.WithUnit("{document}"),
	); err != nil {
		return nil, fmt.Errorf("create documents counter: %w", err)
	}
	if m.entries, err = meter.Int64Counter("voucher_export_entries_total",
		metric.WithDescription("Voucher entries written to export files"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, fmt.Errorf("create entries counter: %w", err)
	}
	if m.tasks, err = meter.Int64Counter("voucher_export_tasks_total",
		metric.WithDescription("Export tasks finished, by final status"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("create tasks counter: %w", err)
	}
	if m.taskDuration, err = meter.Float64Histogram("voucher_export_task_duration_seconds",
		metric.WithDescription("Wall time from task start to its final status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600),
	); err != nil {
		return nil, fmt.Errorf("create task duration histogram: %w", err)
	}
	if m.markers, err = meter.Int64Counter("voucher_export_markers_cleared_total",
		metric.WithDescription("Export marker cancellations, by result"),
		metric.WithUnit("{document}"),
	); err != nil {
		return nil, fmt.Errorf("create markers counter: %w", err)
	}
	return m, nil
}

// DocumentProcessed counts one document outcome
func (m *ExportMetrics) DocumentProcessed(ctx context.Context, typeCode, outcome string) {
	m.documents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type_code", typeCode),
		attribute.String("outcome", outcome),
	))
}

// EntriesEmitted counts entries written to a file
func (m *ExportMetrics) EntriesEmitted(ctx context.Context, typeCode string, count int) {
	if count <= 0 {
		return
	}
	m.entries.Add(ctx, int64(count), metric.WithAttributes(attribute.String("type_code", typeCode)))
}

// TaskFinished counts a finished task and records its duration
func (m *ExportMetrics) TaskFinished(ctx context.Context, typeCode, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("type_code", typeCode),
		attribute.String("status", status),
	)
	m.tasks.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
}

// MarkersCleared counts the results of a marker cancellation
func (m *ExportMetrics) MarkersCleared(ctx context.Context, typeCode string, succeeded, failed int) {
	if succeeded > 0 {
		m.markers.Add(ctx, int64(succeeded), metric.WithAttributes(
			attribute.String("type_code", typeCode),
			attribute.String("result", "cleared"),
		))
	}
	if failed > 0 {
		m.markers.Add(ctx, int64(failed), metric.WithAttributes(
			attribute.String("type_code", typeCode),
			attribute.String("result", "failed"),
		))
	}
}
