package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/erp/voucher-export/internal/infrastructure/persistence"
	"github.com/erp/voucher-export/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{
			Driver:    "local",
			LocalRoot: t.TempDir(),
			Prefix:    "voucher-exports",
		},
		Export: config.ExportConfig{
			MaxConcurrentTasks: 2,
			QueueSize:          10,
			PageSize:           2,
			ProgressFlushEvery: 1,
			DocumentWorkers:    2,
			DefaultFormat:      "dbf",
			UnknownCounterpart: "domestic",
			StaleTaskTimeout:   time.Hour,
			JanitorSchedule:    "@every 5m",
		},
	}
}

func newStack(t *testing.T, cfg *config.Config, mode Mode) *ExportStack {
	t.Helper()
	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "export.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	providers, err := telemetry.NewProviders(context.Background(), config.TelemetryConfig{}, zap.NewNop())
	require.NoError(t, err)

	stack, err := NewExportStack(cfg, db.DB, providers, mode, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, stack.Start(context.Background()))
	t.Cleanup(func() { _ = stack.Stop(context.Background()) })
	return stack
}

func seedPayments(t *testing.T, stack *ExportStack, actor export.Actor, count int) {
	t.Helper()
	for n := 1; n <= count; n++ {
		domestic := true
		doc := &settlement.Document{
			TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(actor.TenantID, actor.UserID),
			TypeCode:            settlement.TypePayment,
			DocumentNumber:      fmt.Sprintf("PAY-%04d", n),
			Counterpart:         settlement.Counterpart{ID: uuid.New(), Name: "Acme Trading", IsDomestic: &domestic},
			SettlementCurrency:  valueobject.CNY,
			BaseCurrency:        valueobject.CNY,
			SettlementRate:      decimal.NewFromInt(1),
			NominalAmount:       decimal.NewFromInt(int64(100 * n)),
			DocumentDate:        time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC),
			Items: []settlement.LineItem{{
				ID:           uuid.New(),
				Amount:       decimal.NewFromInt(int64(100 * n)),
				ExchangeRate: decimal.NewFromInt(1),
				Fee: &settlement.OriginFee{
					ID:           uuid.New(),
					Name:         "Freight",
					Currency:     valueobject.CNY,
					ExchangeRate: decimal.NewFromInt(1),
				},
			}},
		}
		require.NoError(t, stack.Documents.Save(context.Background(), doc))
	}
}

func operatorActor() export.Actor {
	return export.Actor{TenantID: uuid.New(), UserID: uuid.New(), Permissions: []string{"*"}}
}

func TestExportStack_InlineRunAndCancel(t *testing.T) {
	ctx := context.Background()
	stack := newStack(t, testConfig(t), Inline)
	assert.Nil(t, stack.Pool)
	assert.Nil(t, stack.Janitor)

	actor := operatorActor()
	seedPayments(t, stack, actor, 3)

	submitted, err := stack.Exports.Submit(ctx, exportapp.SubmitExportCommand{
		Actor:       actor,
		TypeCode:    "PAYMENT",
		Conditions:  map[string]string{"document_date": "2024-01-01,2024-01-31"},
		DisplayName: "January payments",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), submitted.ExpectedCount)

	task, err := stack.Exports.GetTask(ctx, actor.TenantID, submitted.TaskID)
	require.NoError(t, err)
	require.Equal(t, string(export.TaskStatusCompleted), task.Status, task.FailureReason)
	assert.Equal(t, 3, task.SucceededCount)
	assert.Equal(t, 0, task.FailedCount)
	assert.Equal(t, 100.0, task.Progress)
	require.NotNil(t, task.FileID)

	location, err := stack.Exports.FileLocation(ctx, actor.TenantID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/dbase", location.ContentType)
	u, err := url.Parse(location.URL)
	require.NoError(t, err)
	require.Equal(t, "file", u.Scheme)
	data, err := os.ReadFile(u.Path)
	require.NoError(t, err)
	assert.Equal(t, location.Size, int64(len(data)))

	result, err := stack.Cancellations.Cancel(ctx, exportapp.CancelExportCommand{
		Actor:       actor,
		TypeCode:    "PAYMENT",
		WindowStart: time.Now().Add(-time.Hour),
		WindowEnd:   time.Now().Add(time.Hour),
		Reason:      "re-run",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestExportStack_PooledRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Export.DefaultFormat = "xlsx"
	stack := newStack(t, cfg, Pooled)
	require.NotNil(t, stack.Pool)
	require.NotNil(t, stack.Janitor)

	actor := operatorActor()
	seedPayments(t, stack, actor, 2)

	submitted, err := stack.Exports.Submit(ctx, exportapp.SubmitExportCommand{
		Actor:      actor,
		TypeCode:   "PAYMENT",
		Conditions: map[string]string{"counterpart_name": "Acme Trading"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := stack.Exports.GetTask(ctx, actor.TenantID, submitted.TaskID)
		return err == nil && task.Status == string(export.TaskStatusCompleted)
	}, 10*time.Second, 20*time.Millisecond)

	task, err := stack.Exports.GetTask(ctx, actor.TenantID, submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", task.Format)
	assert.Equal(t, 2, task.SucceededCount)
}

func TestNewExportStack_BadAccountsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.AccountsFile = filepath.Join(t.TempDir(), "missing.yaml")
	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "export.db"), nil)
	require.NoError(t, err)
	defer db.Close()
	providers, err := telemetry.NewProviders(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)

	_, err = NewExportStack(cfg, db.DB, providers, Inline, nil)
	assert.Error(t, err)
}
