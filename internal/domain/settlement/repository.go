package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentQuery selects documents of one type for a tenant
type DocumentQuery struct {
	TenantID   uuid.UUID
	TypeCode   TypeCode
	Conditions []Condition
}

// PageCursor is the keyset position after the last document of a page.
// Documents are ordered by (document_date, id).
type PageCursor struct {
	DocumentDate time.Time
	ID           uuid.UUID
}

// CursorAfter returns the cursor positioned after the given document
func CursorAfter(doc *Document) *PageCursor {
	return &PageCursor{DocumentDate: doc.DocumentDate, ID: doc.ID}
}

// MarkerClaim stamps the export marker of one document if nobody else did first
type MarkerClaim struct {
	TenantID        uuid.UUID
	DocumentID      uuid.UUID
	ExpectedVersion int
	ExportedAt      time.Time
	ExportedBy      uuid.UUID
	TaskID          uuid.UUID
	TypeCode        TypeCode
	Reexport        bool
}

// MarkerReversal clears the export marker of one document
type MarkerReversal struct {
	TenantID   uuid.UUID
	DocumentID uuid.UUID
	TypeCode   TypeCode
	Reason     string
	ReversedBy uuid.UUID
	ReversedAt time.Time
}

// DocumentRepository defines the persistence and query operations for exportable documents
type DocumentRepository interface {
	// Save creates or replaces a document together with its items and transactions
	Save(ctx context.Context, doc *Document) error

	// FindByID loads a document with its items and transactions
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)

	// Count returns how many documents match the query
	Count(ctx context.Context, query DocumentQuery) (int64, error)

	// FindPage returns up to limit documents after the cursor, fully loaded.
	// A nil cursor starts from the beginning.
	FindPage(ctx context.Context, query DocumentQuery, after *PageCursor, limit int) ([]*Document, error)

	// FindHeaders returns the matching documents without items or transactions
	FindHeaders(ctx context.Context, query DocumentQuery) ([]*Document, error)

	// ClaimExportMarker stamps the marker using an optimistic check.
	// It returns false when the document changed or was exported meanwhile.
	ClaimExportMarker(ctx context.Context, claim MarkerClaim) (bool, error)

	// ReleaseExportMarkers clears the markers a task stamped on the given documents
	ReleaseExportMarkers(ctx context.Context, tenantID, taskID uuid.UUID, documentIDs []uuid.UUID) (int64, error)

	// ClearExportMarker clears one marker in its own transaction and records the reversal.
	// It returns false when the document carries no marker.
	ClearExportMarker(ctx context.Context, reversal MarkerReversal) (bool, error)
}
