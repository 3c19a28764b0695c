package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TypeCode identifies an exportable document type
type TypeCode string

const (
	TypeReceipt     TypeCode = "RECEIPT"
	TypePayment     TypeCode = "PAYMENT"
	TypeInvoice     TypeCode = "INVOICE"
	TypeRequisition TypeCode = "REQUISITION"
)

// AllTypeCodes returns all exportable document types
func AllTypeCodes() []TypeCode {
	return []TypeCode{TypeReceipt, TypePayment, TypeInvoice, TypeRequisition}
}

// ParseTypeCode parses a type code, case-insensitively
func ParseTypeCode(s string) (TypeCode, error) {
	t := TypeCode(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown document type code: %q", s)
	}
	return t, nil
}

// IsValid reports whether the type code is known
func (t TypeCode) IsValid() bool {
	switch t {
	case TypeReceipt, TypePayment, TypeInvoice, TypeRequisition:
		return true
	}
	return false
}

// IsSettlement reports whether documents of this type move cash
func (t TypeCode) IsSettlement() bool {
	return t == TypeReceipt || t == TypePayment
}

// String returns the type code
func (t TypeCode) String() string {
	return string(t)
}

// OriginFee is the fee record a line item settles
type OriginFee struct {
	ID           uuid.UUID
	Name         string
	IsIncome     bool
	IsAdvanceFee *bool // nil means regular
	Currency     valueobject.Currency
	ExchangeRate decimal.Decimal
}

// LineItem is one settled fee line of a document
type LineItem struct {
	ID                uuid.UUID
	Amount            decimal.Decimal // settlement currency; the sign does not carry direction
	ExchangeRate      decimal.Decimal // item-level rate, used when the fee carries none
	Fee               *OriginFee
	RequisitionItemID *uuid.UUID
}

// ConversionRate returns the rate used to bring the item into base currency
func (li LineItem) ConversionRate() decimal.Decimal {
	if li.Fee != nil && li.Fee.ExchangeRate.IsPositive() {
		return li.Fee.ExchangeRate
	}
	return li.ExchangeRate
}

// ActualTransaction is a recorded cash movement of a settlement document
type ActualTransaction struct {
	ID            uuid.UUID
	CashAccount   string // ledger account code of the bank/cash account
	BankAccountNo string
	Amount        decimal.Decimal // settlement currency
	ServiceFee    decimal.Decimal // bank charge, settlement currency
	ExchangeRate  decimal.Decimal
	OccurredAt    time.Time
}

// BankInfo describes the bank account named on a settlement document
type BankInfo struct {
	BankName    string
	AccountNo   string
	CashAccount string
	ServiceFee  decimal.Decimal
}

// ExportMarker records that a document was included in an export.
// ExportTaskID points at the run that stamped it.
type ExportMarker struct {
	ExportedAt     *time.Time
	ExportedBy     *uuid.UUID
	ExportTypeCode string
	ExportTaskID   *uuid.UUID
}

// IsExported reports whether the marker is set
func (m ExportMarker) IsExported() bool {
	return m.ExportedAt != nil
}

// Counterpart is the customer or supplier a document is settled with
type Counterpart struct {
	ID         uuid.UUID
	Name       string
	IsDomestic *bool // nil means not recorded
}

// Document is an exportable finance document: a receipt, payment, invoice or
// OA expense requisition. Cash-related fields only apply to receipts and payments.
type Document struct {
	shared.TenantAggregateRoot
	TypeCode           TypeCode
	DocumentNumber     string
	Counterpart        Counterpart
	SettlementCurrency valueobject.Currency
	BaseCurrency       valueobject.Currency
	SettlementRate     decimal.Decimal
	NominalAmount      decimal.Decimal
	AdvanceAmount      decimal.Decimal
	DocumentDate       time.Time
	ConfirmedAt        *time.Time
	Items              []LineItem
	Transactions       []ActualTransaction
	Bank               *BankInfo
	ExportMarker
}

// Validate checks the invariants required before a document can be exported
func (d *Document) Validate() error {
	if !d.TypeCode.IsValid() {
		return shared.NewDomainError("INVALID_DOCUMENT", fmt.Sprintf("unknown type code %q", d.TypeCode))
	}
	if d.BaseCurrency == "" {
		return shared.NewDomainError("INVALID_DOCUMENT", "base currency is required")
	}
	if len(d.Items) == 0 {
		return shared.NewDomainError("INVALID_DOCUMENT", "document has no line items")
	}
	for i, item := range d.Items {
		if item.Fee == nil {
			return shared.NewDomainError("INVALID_DOCUMENT",
				fmt.Sprintf("line item %d does not reference an originating fee", i+1))
		}
		if !item.ConversionRate().IsPositive() {
			return shared.NewDomainError("INVALID_DOCUMENT",
				fmt.Sprintf("line item %d has no usable exchange rate", i+1))
		}
	}
	if d.TypeCode.IsSettlement() && !d.SettlementRate.IsPositive() {
		return shared.NewDomainError("INVALID_DOCUMENT", "settlement exchange rate must be positive")
	}
	return nil
}

// MarkExported stamps the export marker
func (d *Document) MarkExported(at time.Time, by, taskID uuid.UUID) {
	d.ExportedAt = &at
	d.ExportedBy = &by
	d.ExportTypeCode = string(d.TypeCode)
	d.ExportTaskID = &taskID
	d.IncrementVersion()
}

// ClearExportMarker removes the export marker
func (d *Document) ClearExportMarker() {
	d.ExportMarker = ExportMarker{}
	d.IncrementVersion()
}

// Reference returns the label used to tie voucher entries back to the document
func (d *Document) Reference() string {
	if d.DocumentNumber != "" {
		return d.DocumentNumber
	}
	return d.ID.String()
}
