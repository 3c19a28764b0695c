package export

import (
	"context"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/voucher"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentSource is the filtered query capability over exportable documents
type DocumentSource interface {
	// Count returns the up-front estimate of matching documents
	Count(ctx context.Context, query settlement.DocumentQuery) (int64, error)

	// FindPage returns up to limit fully loaded documents after the cursor
	FindPage(ctx context.Context, query settlement.DocumentQuery, after *settlement.PageCursor, limit int) ([]*settlement.Document, error)
}

// MarkerStore writes the export markers of documents
type MarkerStore interface {
	// FindHeaders returns the matching documents without items
	FindHeaders(ctx context.Context, query settlement.DocumentQuery) ([]*settlement.Document, error)

	// ClaimExportMarker stamps one marker with an optimistic check
	ClaimExportMarker(ctx context.Context, claim settlement.MarkerClaim) (bool, error)

	// ReleaseExportMarkers clears the markers a task stamped
	ReleaseExportMarkers(ctx context.Context, tenantID, taskID uuid.UUID, documentIDs []uuid.UUID) (int64, error)

	// ClearExportMarker clears one marker in its own transaction
	ClearExportMarker(ctx context.Context, reversal settlement.MarkerReversal) (bool, error)
}

// Record is one flat row of the export file
type Record struct {
	VoucherNo        int
	Date             time.Time
	AccountCode      string
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	CounterpartLabel string
	Memo             string
	DocumentRef      string
}

// RecordsOf flattens the entries of one document's voucher
func RecordsOf(voucherNo int, date time.Time, entries []voucher.Entry) []Record {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = Record{
			VoucherNo:        voucherNo,
			Date:             date,
			AccountCode:      e.AccountCode,
			Debit:            e.DebitAmount(),
			Credit:           e.CreditAmount(),
			CounterpartLabel: e.CounterpartLabel,
			Memo:             e.Memo,
			DocumentRef:      e.DocumentRef,
		}
	}
	return records
}

// TableWriter serializes records into a binary tabular file
type TableWriter interface {
	Format() Format
	ContentType() string
	Extension() string
	Write(records []Record) ([]byte, error)
}

// StoredFile is a file handed to the file store
type StoredFile struct {
	TenantID    uuid.UUID
	CreatedBy   uuid.UUID
	Name        string
	Remark      string
	ContentType string
	Data        []byte
}

// FileLocation tells a caller where to download a stored file
type FileLocation struct {
	FileID      uuid.UUID  `json:"file_id"`
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	URL         string     `json:"url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// FileStore persists produced files and returns their identifiers
type FileStore interface {
	Save(ctx context.Context, file StoredFile) (uuid.UUID, error)
	Locate(ctx context.Context, tenantID, fileID uuid.UUID) (*FileLocation, error)
}

// CancelSignal carries cancellation requests to the runner that owns a task
type CancelSignal interface {
	Request(ctx context.Context, taskID uuid.UUID) error
	IsRequested(ctx context.Context, taskID uuid.UUID) (bool, error)
	Clear(ctx context.Context, taskID uuid.UUID) error
}
