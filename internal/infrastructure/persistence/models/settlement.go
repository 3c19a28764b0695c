package models

import (
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentModel is the persistence model for an exportable settlement document.
// The export marker columns are written only through conditional updates.
type DocumentModel struct {
	TenantAggregateModel
	TypeCode              settlement.TypeCode `gorm:"type:varchar(20);not null;index"`
	DocumentNumber        string              `gorm:"type:varchar(64);not null"`
	CounterpartID         uuid.UUID           `gorm:"type:uuid;index"`
	CounterpartName       string              `gorm:"type:varchar(255)"`
	CounterpartIsDomestic *bool
	SettlementCurrency    string              `gorm:"type:varchar(3)"`
	BaseCurrency          string              `gorm:"type:varchar(3);not null"`
	SettlementRate        decimal.Decimal     `gorm:"type:decimal(18,8);not null;default:0"`
	NominalAmount         decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	AdvanceAmount         decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	DocumentDate          time.Time           `gorm:"not null;index"`
	ConfirmedAt           *time.Time
	BankName              string              `gorm:"type:varchar(255)"`
	BankAccountNo         string              `gorm:"type:varchar(64)"`
	BankCashAccount       string              `gorm:"type:varchar(32)"`
	BankServiceFee        decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	ExportedAt            *time.Time          `gorm:"index"`
	ExportedBy            *uuid.UUID          `gorm:"type:uuid"`
	ExportTypeCode        string              `gorm:"type:varchar(20)"`
	ExportTaskID          *uuid.UUID          `gorm:"type:uuid;index"`

	Items        []DocumentItemModel        `gorm:"foreignKey:DocumentID"`
	Transactions []DocumentTransactionModel `gorm:"foreignKey:DocumentID"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "settlement_documents"
}

// ToDomain converts the persistence model to a domain Document.
// Items and transactions are converted when they were loaded.
func (m *DocumentModel) ToDomain() *settlement.Document {
	doc := &settlement.Document{
		TypeCode:       m.TypeCode,
		DocumentNumber: m.DocumentNumber,
		Counterpart: settlement.Counterpart{
			ID:         m.CounterpartID,
			Name:       m.CounterpartName,
			IsDomestic: m.CounterpartIsDomestic,
		},
		SettlementCurrency: valueobject.Currency(m.SettlementCurrency),
		BaseCurrency:       valueobject.Currency(m.BaseCurrency),
		SettlementRate:     m.SettlementRate,
		NominalAmount:      m.NominalAmount,
		AdvanceAmount:      m.AdvanceAmount,
		DocumentDate:       m.DocumentDate,
		ConfirmedAt:        m.ConfirmedAt,
		ExportMarker: settlement.ExportMarker{
			ExportedAt:     m.ExportedAt,
			ExportedBy:     m.ExportedBy,
			ExportTypeCode: m.ExportTypeCode,
			ExportTaskID:   m.ExportTaskID,
		},
	}
	m.PopulateTenantAggregateRoot(&doc.TenantAggregateRoot)

	if m.BankName != "" || m.BankAccountNo != "" || m.BankCashAccount != "" {
		doc.Bank = &settlement.BankInfo{
			BankName:    m.BankName,
			AccountNo:   m.BankAccountNo,
			CashAccount: m.BankCashAccount,
			ServiceFee:  m.BankServiceFee.Decimal,
		}
	}

	doc.Items = make([]settlement.LineItem, len(m.Items))
	for i := range m.Items {
		doc.Items[i] = m.Items[i].ToDomain()
	}
	doc.Transactions = make([]settlement.ActualTransaction, len(m.Transactions))
	for i := range m.Transactions {
		doc.Transactions[i] = m.Transactions[i].ToDomain()
	}
	return doc
}

// FromDomain populates the persistence model from a domain Document
func (m *DocumentModel) FromDomain(doc *settlement.Document) {
	m.FromDomainTenantAggregateRoot(doc.TenantAggregateRoot)
	m.TypeCode = doc.TypeCode
	m.DocumentNumber = doc.DocumentNumber
	m.CounterpartID = doc.Counterpart.ID
	m.CounterpartName = doc.Counterpart.Name
	m.CounterpartIsDomestic = doc.Counterpart.IsDomestic
	m.SettlementCurrency = doc.SettlementCurrency.String()
	m.BaseCurrency = doc.BaseCurrency.String()
	m.SettlementRate = doc.SettlementRate
	m.NominalAmount = doc.NominalAmount
	m.AdvanceAmount = doc.AdvanceAmount
	m.DocumentDate = doc.DocumentDate
	m.ConfirmedAt = doc.ConfirmedAt
	m.ExportedAt = doc.ExportedAt
	m.ExportedBy = doc.ExportedBy
	m.ExportTypeCode = doc.ExportTypeCode
	m.ExportTaskID = doc.ExportTaskID

	if doc.Bank != nil {
		m.BankName = doc.Bank.BankName
		m.BankAccountNo = doc.Bank.AccountNo
		m.BankCashAccount = doc.Bank.CashAccount
		m.BankServiceFee = decimal.NewNullDecimal(doc.Bank.ServiceFee)
	}

	m.Items = make([]DocumentItemModel, len(doc.Items))
	for i, item := range doc.Items {
		m.Items[i] = DocumentItemModelFromDomain(doc.ID, i+1, item)
	}
	m.Transactions = make([]DocumentTransactionModel, len(doc.Transactions))
	for i, txn := range doc.Transactions {
		m.Transactions[i] = DocumentTransactionModelFromDomain(doc.ID, i+1, txn)
	}
}

// DocumentModelFromDomain creates a new persistence model from a domain Document
func DocumentModelFromDomain(doc *settlement.Document) *DocumentModel {
	m := &DocumentModel{}
	m.FromDomain(doc)
	return m
}

// DocumentItemModel is one line item of a settlement document together with
// a snapshot of the fee it settles
type DocumentItemModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	DocumentID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo            int             `gorm:"not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ExchangeRate      decimal.Decimal `gorm:"type:decimal(18,8);not null;default:0"`
	FeeID             *uuid.UUID      `gorm:"type:uuid"`
	FeeName           string          `gorm:"type:varchar(255)"`
	FeeIsIncome       bool            `gorm:"not null;default:false"`
	FeeIsAdvance      *bool
	FeeCurrency       string          `gorm:"type:varchar(3)"`
	FeeExchangeRate   decimal.Decimal `gorm:"type:decimal(18,8);not null;default:0"`
	RequisitionItemID *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (DocumentItemModel) TableName() string {
	return "settlement_document_items"
}

// ToDomain converts the persistence model to a domain LineItem
func (m *DocumentItemModel) ToDomain() settlement.LineItem {
	item := settlement.LineItem{
		ID:                m.ID,
		Amount:            m.Amount,
		ExchangeRate:      m.ExchangeRate,
		RequisitionItemID: m.RequisitionItemID,
	}
	if m.FeeID != nil {
		item.Fee = &settlement.OriginFee{
			ID:           *m.FeeID,
			Name:         m.FeeName,
			IsIncome:     m.FeeIsIncome,
			IsAdvanceFee: m.FeeIsAdvance,
			Currency:     valueobject.Currency(m.FeeCurrency),
			ExchangeRate: m.FeeExchangeRate,
		}
	}
	return item
}

// DocumentItemModelFromDomain creates the persistence model of one line item
func DocumentItemModelFromDomain(documentID uuid.UUID, lineNo int, item settlement.LineItem) DocumentItemModel {
	m := DocumentItemModel{
		ID:                item.ID,
		DocumentID:        documentID,
		LineNo:            lineNo,
		Amount:            item.Amount,
		ExchangeRate:      item.ExchangeRate,
		RequisitionItemID: item.RequisitionItemID,
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if fee := item.Fee; fee != nil {
		feeID := fee.ID
		m.FeeID = &feeID
		m.FeeName = fee.Name
		m.FeeIsIncome = fee.IsIncome
		m.FeeIsAdvance = fee.IsAdvanceFee
		m.FeeCurrency = fee.Currency.String()
		m.FeeExchangeRate = fee.ExchangeRate
	}
	return m
}

// DocumentTransactionModel is one recorded cash movement of a settlement document
type DocumentTransactionModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	DocumentID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo        int             `gorm:"not null"`
	CashAccount   string          `gorm:"type:varchar(32)"`
	BankAccountNo string          `gorm:"type:varchar(64)"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ServiceFee    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ExchangeRate  decimal.Decimal `gorm:"type:decimal(18,8);not null;default:0"`
	OccurredAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentTransactionModel) TableName() string {
	return "settlement_document_transactions"
}

// ToDomain converts the persistence model to a domain ActualTransaction
func (m *DocumentTransactionModel) ToDomain() settlement.ActualTransaction {
	return settlement.ActualTransaction{
		ID:            m.ID,
		CashAccount:   m.CashAccount,
		BankAccountNo: m.BankAccountNo,
		Amount:        m.Amount,
		ServiceFee:    m.ServiceFee,
		ExchangeRate:  m.ExchangeRate,
		OccurredAt:    m.OccurredAt,
	}
}

// DocumentTransactionModelFromDomain creates the persistence model of one transaction
func DocumentTransactionModelFromDomain(documentID uuid.UUID, lineNo int, txn settlement.ActualTransaction) DocumentTransactionModel {
	m := DocumentTransactionModel{
		ID:            txn.ID,
		DocumentID:    documentID,
		LineNo:        lineNo,
		CashAccount:   txn.CashAccount,
		BankAccountNo: txn.BankAccountNo,
		Amount:        txn.Amount,
		ServiceFee:    txn.ServiceFee,
		ExchangeRate:  txn.ExchangeRate,
		OccurredAt:    txn.OccurredAt,
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return m
}
