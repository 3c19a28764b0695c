package export

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/voucher"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", NewValidationError("window_start", "is required"), CodeValidationFailed},
		{"already exported", &AlreadyExportedError{DocumentRef: "PAY-1"}, CodeAlreadyExported},
		{"infrastructure", NewInfrastructureError("store file", storeErr), CodeInfrastructureFailure},
		{"not exported", &CancellationNotFoundError{}, CodeNotExported},
		{"forbidden", &ForbiddenError{}, CodeForbidden},
		{"balancing", &voucher.BalancingError{DocumentRef: "PAY-1"}, voucher.CodeUnbalanced},
		{"wrapped", fmt.Errorf("document 4: %w", &voucher.BalancingError{}), voucher.CodeUnbalanced},
		{"domain error", shared.NewDomainError("INVALID_DOCUMENT", "no items"), "INVALID_DOCUMENT"},
		{"plain", storeErr, CodeInfrastructureFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestInfrastructureError_Unwrap(t *testing.T) {
	err := NewInfrastructureError("store file", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "store file: context deadline exceeded", err.Error())
	assert.Equal(t, "not exported", (&CancellationNotFoundError{}).Error())
	assert.Equal(t, "window_start: is required", NewValidationError("window_start", "is required").Error())
}

func TestAuthorizers(t *testing.T) {
	tenantID := uuid.New()
	owner := uuid.New()
	doc := &settlement.Document{TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, owner)}
	ctx := context.Background()

	tests := []struct {
		name  string
		auth  Authorizer
		actor Actor
		want  bool
	}{
		{"allow all in tenant", AllowAll{}, Actor{TenantID: tenantID}, true},
		{"allow all other tenant", AllowAll{}, Actor{TenantID: uuid.New()}, false},
		{"owner with permission", PermissionAuthorizer{}, Actor{TenantID: tenantID, UserID: owner, Permissions: []string{"voucher_export:create"}}, true},
		{"owner without permission", PermissionAuthorizer{}, Actor{TenantID: tenantID, UserID: owner}, false},
		{"other user", PermissionAuthorizer{}, Actor{TenantID: tenantID, UserID: uuid.New(), Permissions: []string{"voucher_export:create"}}, false},
		{"other user with all documents", PermissionAuthorizer{}, Actor{TenantID: tenantID, UserID: uuid.New(), Permissions: []string{"voucher_export:create", PermissionAllDocuments}}, true},
		{"wildcard", PermissionAuthorizer{}, Actor{TenantID: tenantID, UserID: uuid.New(), Permissions: []string{"*"}}, true},
		{"func", AuthorizerFunc(func(context.Context, Actor, Action, *settlement.Document) bool { return false }), Actor{TenantID: tenantID}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.auth.Authorize(ctx, tt.actor, ActionExport, doc))
		})
	}
}

func TestRecordsOf(t *testing.T) {
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entries := []voucher.Entry{
		{AccountCode: "2241.01", Side: voucher.Debit, Amount: decimal.NewFromInt(1000), CounterpartLabel: "Acme", Memo: "PAY-1 Advance tariffs payable", DocumentRef: "PAY-1"},
		{AccountCode: "1002", Side: voucher.Credit, Amount: decimal.NewFromInt(1000), CounterpartLabel: "Acme", Memo: "PAY-1 Cash", DocumentRef: "PAY-1"},
	}

	records := RecordsOf(3, date, entries)

	assert.Len(t, records, 2)
	assert.Equal(t, 3, records[0].VoucherNo)
	assert.Equal(t, date, records[1].Date)
	assert.True(t, records[0].Debit.Equal(decimal.NewFromInt(1000)))
	assert.True(t, records[0].Credit.IsZero())
	assert.True(t, records[1].Debit.IsZero())
	assert.True(t, records[1].Credit.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "PAY-1", records[1].DocumentRef)
}
