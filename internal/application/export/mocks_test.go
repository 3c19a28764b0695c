package exportapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/erp/voucher-export/internal/domain/voucher"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepository is a mock implementation of export.TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*export.ExportTask, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.ExportTask), args.Error(1)
}

func (m *MockTaskRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter export.TaskFilter) (shared.Paginated[*export.ExportTask], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[*export.ExportTask]), args.Error(1)
}

func (m *MockTaskRepository) FindPending(ctx context.Context, limit int) ([]*export.ExportTask, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*export.ExportTask), args.Error(1)
}

func (m *MockTaskRepository) FindStale(ctx context.Context, idleSince time.Time) ([]*export.ExportTask, error) {
	args := m.Called(ctx, idleSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*export.ExportTask), args.Error(1)
}

func (m *MockTaskRepository) Create(ctx context.Context, task *export.ExportTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) SaveWithLock(ctx context.Context, task *export.ExportTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// MockDocumentSource is a mock implementation of export.DocumentSource
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) Count(ctx context.Context, query settlement.DocumentQuery) (int64, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDocumentSource) FindPage(ctx context.Context, query settlement.DocumentQuery, after *settlement.PageCursor, limit int) ([]*settlement.Document, error) {
	args := m.Called(ctx, query, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*settlement.Document), args.Error(1)
}

// MockMarkerStore is a mock implementation of export.MarkerStore
type MockMarkerStore struct {
	mock.Mock
}

func (m *MockMarkerStore) FindHeaders(ctx context.Context, query settlement.DocumentQuery) ([]*settlement.Document, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*settlement.Document), args.Error(1)
}

func (m *MockMarkerStore) ClaimExportMarker(ctx context.Context, claim settlement.MarkerClaim) (bool, error) {
	args := m.Called(ctx, claim)
	return args.Bool(0), args.Error(1)
}

func (m *MockMarkerStore) ReleaseExportMarkers(ctx context.Context, tenantID, taskID uuid.UUID, documentIDs []uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, taskID, documentIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMarkerStore) ClearExportMarker(ctx context.Context, reversal settlement.MarkerReversal) (bool, error) {
	args := m.Called(ctx, reversal)
	return args.Bool(0), args.Error(1)
}

// MockFileStore is a mock implementation of export.FileStore
type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Save(ctx context.Context, file export.StoredFile) (uuid.UUID, error) {
	args := m.Called(ctx, file)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockFileStore) Locate(ctx context.Context, tenantID, fileID uuid.UUID) (*export.FileLocation, error) {
	args := m.Called(ctx, tenantID, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.FileLocation), args.Error(1)
}

// MockCancelSignal is a mock implementation of export.CancelSignal
type MockCancelSignal struct {
	mock.Mock
}

func (m *MockCancelSignal) Request(ctx context.Context, taskID uuid.UUID) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockCancelSignal) IsRequested(ctx context.Context, taskID uuid.UUID) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCancelSignal) Clear(ctx context.Context, taskID uuid.UUID) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, tenantID, taskID uuid.UUID) error {
	args := m.Called(ctx, tenantID, taskID)
	return args.Error(0)
}

// recordingWriter keeps the records it was asked to write
type recordingWriter struct {
	mu      sync.Mutex
	records []export.Record
	err     error
}

func (w *recordingWriter) Format() export.Format { return export.FormatDBF }
func (w *recordingWriter) ContentType() string { return "application/dbase" }
func (w *recordingWriter) Extension() string { return "dbf" }

func (w *recordingWriter) Write(records []export.Record) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.records = append([]export.Record(nil), records...)
	return []byte(fmt.Sprintf("%d records", len(records))), nil
}

// recordingPublisher keeps published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// unbalancedFor makes the generator fail balancing for one document reference
type unbalancedFor struct {
	inner     *voucher.Generator
	reference string
}

func (g unbalancedFor) Generate(ref voucher.DocumentRef, result voucher.CalculationResult) ([]voucher.Entry, error) {
	if ref.Reference == g.reference {
		return nil, &voucher.BalancingError{
			DocumentRef: ref.Reference,
			Debit:       decimal.NewFromInt(100),
			Credit:      decimal.NewFromInt(99),
		}
	}
	return g.inner.Generate(ref, result)
}

func domestic() *bool {
	b := true
	return &b
}

// newPayment builds a valid domestic CNY payment settling one regular expense
func newPayment(tenantID, createdBy uuid.UUID, n int) *settlement.Document {
	return &settlement.Document{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		TypeCode:            settlement.TypePayment,
		DocumentNumber:      fmt.Sprintf("PAY-%04d", n),
		Counterpart:         settlement.Counterpart{ID: uuid.New(), Name: "Acme Trading", IsDomestic: domestic()},
		SettlementCurrency:  valueobject.CNY,
		BaseCurrency:        valueobject.CNY,
		SettlementRate:      decimal.NewFromInt(1),
		NominalAmount:       decimal.NewFromInt(int64(100 * n)),
		DocumentDate:        time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC),
		Items: []settlement.LineItem{{
			ID:     uuid.New(),
			Amount: decimal.NewFromInt(int64(100 * n)),
			Fee: &settlement.OriginFee{
				ID:           uuid.New(),
				Name:         "Freight",
				ExchangeRate: decimal.NewFromInt(1),
			},
		}},
	}
}

func newPayments(tenantID, createdBy uuid.UUID, count int) []*settlement.Document {
	docs := make([]*settlement.Document, count)
	for i := range docs {
		docs[i] = newPayment(tenantID, createdBy, i+1)
	}
	return docs
}
