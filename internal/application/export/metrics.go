package exportapp

import (
	"context"
	"time"
)

// Document outcomes reported to Metrics
const (
	OutcomeExported = "exported"
	OutcomeFailed   = "failed"
)

// Metrics receives export measurements
type Metrics interface {
	DocumentProcessed(ctx context.Context, typeCode, outcome string)
	EntriesEmitted(ctx context.Context, typeCode string, count int)
	TaskFinished(ctx context.Context, typeCode, status string, duration time.Duration)
	MarkersCleared(ctx context.Context, typeCode string, succeeded, failed int)
}

// NopMetrics discards all measurements
type NopMetrics struct{}

func (NopMetrics) DocumentProcessed(context.Context, string, string) {}
func (NopMetrics) EntriesEmitted(context.Context, string, int) {}
func (NopMetrics) TaskFinished(context.Context, string, string, time.Duration) {}
func (NopMetrics) MarkersCleared(context.Context, string, int, int) {}
