package voucher

import (
	"math/rand"
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(amount, rate string, income bool, advance *bool) settlement.LineItem {
	return settlement.LineItem{
		ID:     uuid.New(),
		Amount: dec(amount),
		Fee: &settlement.OriginFee{
			ID:           uuid.New(),
			IsIncome:     income,
			IsAdvanceFee: advance,
			ExchangeRate: dec(rate),
		},
	}
}

func newDoc(typeCode settlement.TypeCode, currency valueobject.Currency, rate, nominal string, domestic *bool, items ...settlement.LineItem) *settlement.Document {
	return &settlement.Document{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
		TypeCode:            typeCode,
		DocumentNumber:      string(typeCode) + "-0001",
		Counterpart:         settlement.Counterpart{ID: uuid.New(), Name: "Acme Trading", IsDomestic: domestic},
		SettlementCurrency:  currency,
		BaseCurrency:        valueobject.CNY,
		SettlementRate:      dec(rate),
		NominalAmount:       dec(nominal),
		DocumentDate:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Items:               items,
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestEngine_Compute_DomesticAdvancePayment(t *testing.T) {
	doc := newDoc(settlement.TypePayment, valueobject.CNY, "1", "1000", boolPtr(true),
		item("1000", "1.0", false, boolPtr(true)))

	res := NewEngine(NewClassifier("")).Compute(doc)

	for _, tag := range AllTags() {
		if tag == DomesticAdvancePayable {
			assertDec(t, "1000", res.Amount(tag))
			continue
		}
		assertDec(t, "0", res.Amount(tag), tag.String())
	}
	assertDec(t, "0", res.ExchangeLoss)
	assertDec(t, "1000", res.CashBase())
	assert.False(t, res.IsMixedBusiness())
	assert.Len(t, res.Buckets(), 12)
}

func TestEngine_Compute_ExchangeLoss(t *testing.T) {
	// booked at 7.0, received at 7.1
	doc := newDoc(settlement.TypeReceipt, valueobject.USD, "7.1", "100", boolPtr(false),
		item("100", "7.0", true, nil))

	res := NewEngine(NewClassifier("")).Compute(doc)

	assertDec(t, "700", res.Amount(ForeignReceivable))
	assertDec(t, "710", res.NominalBase)
	assertDec(t, "-10", res.ExchangeLoss)
	assert.Len(t, res.Buckets(), 7)
}

func TestEngine_Compute_UsesFeeRateNotDocumentRate(t *testing.T) {
	it := item("10", "6.5", false, nil)
	it.ExchangeRate = dec("9.9")
	doc := newDoc(settlement.TypePayment, valueobject.USD, "7", "10", boolPtr(true), it)

	res := NewEngine(NewClassifier("")).Compute(doc)

	assertDec(t, "65", res.Amount(DomesticRegularPayable))
	assertDec(t, "-5", res.ExchangeLoss)
}

func TestEngine_Compute_MixedBusiness(t *testing.T) {
	engine := NewEngine(NewClassifier(""))

	mixed := newDoc(settlement.TypeReceipt, valueobject.CNY, "1", "60", boolPtr(true),
		item("100", "1", true, nil),
		item("40", "1", false, nil))
	res := engine.Compute(mixed)
	assert.True(t, res.IsMixedBusiness())
	assertDec(t, "100", res.Amount(DomesticRegularReceivable))
	assertDec(t, "40", res.Amount(DomesticRegularPayable))
	assertDec(t, "0", res.ExchangeLoss)

	incomeOnly := newDoc(settlement.TypeReceipt, valueobject.CNY, "1", "150", boolPtr(true),
		item("100", "1", true, nil),
		item("50", "1", true, boolPtr(true)))
	assert.False(t, engine.Compute(incomeOnly).IsMixedBusiness())
}

func TestEngine_Compute_TransactionsPreferredOverBankInfo(t *testing.T) {
	doc := newDoc(settlement.TypePayment, valueobject.USD, "7.2", "100", boolPtr(false),
		item("100", "7.0", false, nil))
	doc.AdvanceAmount = dec("20")
	doc.Bank = &settlement.BankInfo{CashAccount: "1002.09", ServiceFee: dec("99")}
	doc.Transactions = []settlement.ActualTransaction{
		{ID: uuid.New(), CashAccount: "1002.01", BankAccountNo: "6222-01", Amount: dec("50"), ServiceFee: dec("1"), ExchangeRate: dec("7.2")},
		{ID: uuid.New(), CashAccount: "1002.02", BankAccountNo: "6222-02", Amount: dec("30")},
	}

	res := NewEngine(NewClassifier("")).Compute(doc)

	assertDec(t, "700", res.Amount(ForeignPayable))
	assertDec(t, "720", res.NominalBase)
	assertDec(t, "-20", res.ExchangeLoss)
	assertDec(t, "20", res.Advance.Original.Amount())
	assertDec(t, "144", res.Advance.Base.Amount())
	assertDec(t, "1", res.ServiceFee.Original.Amount())
	assertDec(t, "7.2", res.ServiceFee.Base.Amount())
	assert.Equal(t, valueobject.USD, res.ServiceFee.Original.Currency())
	assert.Equal(t, valueobject.CNY, res.ServiceFee.Base.Currency())

	require.Len(t, res.CashLegs, 2)
	assert.Equal(t, "1002.01", res.CashLegs[0].Account)
	assertDec(t, "360", res.CashLegs[0].Base)
	assertDec(t, "7.2", res.CashLegs[0].ServiceFeeBase)
	assert.Equal(t, "1002.02", res.CashLegs[1].Account)
	assertDec(t, "216", res.CashLegs[1].Base)
	assertDec(t, "576", res.CashBase())
}

func TestEngine_Compute_BankInfoFallback(t *testing.T) {
	doc := newDoc(settlement.TypeReceipt, valueobject.CNY, "1", "500", boolPtr(true),
		item("500", "1", true, nil))
	doc.Bank = &settlement.BankInfo{CashAccount: "1002.05", AccountNo: "6222-05", ServiceFee: dec("2.5")}

	res := NewEngine(NewClassifier("")).Compute(doc)

	require.Len(t, res.CashLegs, 1)
	assert.Equal(t, "1002.05", res.CashLegs[0].Account)
	assertDec(t, "500", res.CashLegs[0].Base)
	assertDec(t, "2.5", res.ServiceFee.Base.Amount())
}

func TestEngine_Compute_NoBankDataDegradesToZero(t *testing.T) {
	doc := newDoc(settlement.TypePayment, valueobject.CNY, "1", "300", boolPtr(true),
		item("300", "1", false, nil))

	res := NewEngine(NewClassifier("")).Compute(doc)

	assertDec(t, "0", res.ServiceFee.Base.Amount())
	assertDec(t, "0", res.Advance.Base.Amount())
	require.Len(t, res.CashLegs, 1)
	assert.Empty(t, res.CashLegs[0].Account)
}

func TestEngine_Compute_RecognitionDocument(t *testing.T) {
	doc := newDoc(settlement.TypeInvoice, valueobject.USD, "0", "0", boolPtr(true),
		item("10", "7", true, nil),
		item("4", "7", false, nil))

	res := NewEngine(NewClassifier("")).Compute(doc)

	assertDec(t, "70", res.Amount(DomesticRegularReceivable))
	assertDec(t, "28", res.Amount(DomesticRegularPayable))
	assertDec(t, "0", res.ExchangeLoss)
	assert.Empty(t, res.CashLegs)
	assert.Len(t, res.Buckets(), 6)
}

func TestEngine_Compute_IsPure(t *testing.T) {
	doc := newDoc(settlement.TypePayment, valueobject.USD, "7.13", "123.45", nil,
		item("50.55", "7.01", false, boolPtr(true)),
		item("80.10", "7.2", true, nil),
		item("-7.20", "7.05", false, nil))
	doc.AdvanceAmount = dec("12.34")
	doc.Transactions = []settlement.ActualTransaction{
		{Amount: dec("60"), ServiceFee: dec("0.35"), ExchangeRate: dec("7.1")},
		{Amount: dec("51.11"), CashAccount: "1002.03"},
	}

	engine := NewEngine(NewClassifier(""))
	first := engine.Compute(doc)
	second := engine.Compute(doc)

	assert.Equal(t, first, second)
}

// randomDocument builds a pseudo-random settlement document from a seeded source
func randomDocument(r *rand.Rand) *settlement.Document {
	typeCode := settlement.TypePayment
	if r.Intn(2) == 0 {
		typeCode = settlement.TypeReceipt
	}
	var domestic *bool
	switch r.Intn(3) {
	case 0:
		domestic = boolPtr(true)
	case 1:
		domestic = boolPtr(false)
	}
	amount := func() decimal.Decimal { return decimal.New(int64(r.Intn(2000000)-200000), -2) }
	rate := func() decimal.Decimal { return decimal.New(int64(r.Intn(90000)+1000), -4) }

	doc := newDoc(typeCode, valueobject.USD, "1", "0", domestic)
	doc.SettlementRate = rate()
	doc.NominalAmount = amount()
	doc.AdvanceAmount = decimal.New(int64(r.Intn(5000)), -2)
	for i := 0; i < 1+r.Intn(6); i++ {
		var adv *bool
		if r.Intn(2) == 0 {
			adv = boolPtr(r.Intn(2) == 0)
		}
		it := item("0", "1", r.Intn(2) == 0, adv)
		it.Amount = amount()
		it.Fee.ExchangeRate = rate()
		doc.Items = append(doc.Items, it)
	}
	switch r.Intn(3) {
	case 0:
		for i := 0; i < 1+r.Intn(3); i++ {
			doc.Transactions = append(doc.Transactions, settlement.ActualTransaction{
				Amount:       amount(),
				ServiceFee:   decimal.New(int64(r.Intn(500)), -2),
				ExchangeRate: rate(),
			})
		}
	case 1:
		doc.Bank = &settlement.BankInfo{ServiceFee: decimal.New(int64(r.Intn(500)), -2)}
	}
	return doc
}

func TestEngine_Compute_BucketsReconcileToItems(t *testing.T) {
	r := rand.New(rand.NewSource(20240501))
	engine := NewEngine(NewClassifier(""))

	for i := 0; i < 300; i++ {
		doc := randomDocument(r)
		res := engine.Compute(doc)

		itemTotal := decimal.Zero
		for _, it := range doc.Items {
			itemTotal = itemTotal.Add(ToBase(it.Amount, it.ConversionRate(), doc.BaseCurrency))
		}
		require.True(t, itemTotal.Equal(res.ItemBaseTotal()), "document %d: items %s, buckets %s", i, itemTotal, res.ItemBaseTotal())
		require.True(t, res.CashBase().Add(res.Advance.Base.Amount()).Equal(res.NominalBase), "document %d: cash split", i)
	}
}
