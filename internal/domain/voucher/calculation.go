package voucher

import (
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Split is an amount kept both in the settlement currency and in base currency
type Split struct {
	Original valueobject.Money
	Base     valueobject.Money
}

// CashLeg is the base-currency cash movement through one bank or cash account.
// An empty Account means the plan's default cash account.
type CashLeg struct {
	Account        string
	BankAccountNo  string
	Base           decimal.Decimal // settled amount, excluding bank charges
	ServiceFeeBase decimal.Decimal
}

// Bucket is one named amount of the fixed bucket view
type Bucket struct {
	Key    string
	Amount decimal.Decimal
}

// CalculationResult holds the classified, base-currency aggregates of one document.
// It is an intermediate value and is never persisted.
type CalculationResult struct {
	TypeCode     settlement.TypeCode
	BaseCurrency valueobject.Currency
	ByTag        [6]decimal.Decimal
	NominalBase  decimal.Decimal
	ExchangeLoss decimal.Decimal
	ServiceFee   Split
	Advance      Split
	CashLegs     []CashLeg
}

// Amount returns the bucket total of a classification tag
func (r CalculationResult) Amount(tag Tag) decimal.Decimal {
	return r.ByTag[tag]
}

// PayableTotal is the sum of the payable buckets
func (r CalculationResult) PayableTotal() decimal.Decimal {
	return r.ByTag[ForeignPayable].Add(r.ByTag[DomesticRegularPayable]).Add(r.ByTag[DomesticAdvancePayable])
}

// ReceivableTotal is the sum of the receivable buckets
func (r CalculationResult) ReceivableTotal() decimal.Decimal {
	return r.ByTag[ForeignReceivable].Add(r.ByTag[DomesticRegularReceivable]).Add(r.ByTag[DomesticAdvanceReceivable])
}

// ItemBaseTotal is the sum of all item base amounts regardless of direction
func (r CalculationResult) ItemBaseTotal() decimal.Decimal {
	return r.PayableTotal().Add(r.ReceivableTotal())
}

// NetItemBase is the item total in the direction of the document:
// payables net of receivables for payments, the reverse otherwise.
func (r CalculationResult) NetItemBase() decimal.Decimal {
	if r.TypeCode == settlement.TypePayment {
		return r.PayableTotal().Sub(r.ReceivableTotal())
	}
	return r.ReceivableTotal().Sub(r.PayableTotal())
}

// CashBase is the settled cash across all legs, excluding bank charges
func (r CalculationResult) CashBase() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range r.CashLegs {
		total = total.Add(leg.Base)
	}
	return total
}

// IsMixedBusiness reports whether the document settles both receivables and payables
func (r CalculationResult) IsMixedBusiness() bool {
	return hasNonZero(r.ByTag[:DomesticAdvancePayable+1]) && hasNonZero(r.ByTag[ForeignReceivable:])
}

func hasNonZero(amounts []decimal.Decimal) bool {
	for _, a := range amounts {
		if !a.IsZero() {
			return true
		}
	}
	return false
}

// Buckets returns the fixed bucket view of the result: twelve buckets for
// payments, seven for receipts and the six classification buckets otherwise.
func (r CalculationResult) Buckets() []Bucket {
	switch r.TypeCode {
	case settlement.TypePayment:
		return []Bucket{
			{ForeignPayable.String(), r.ByTag[ForeignPayable]},
			{DomesticRegularPayable.String(), r.ByTag[DomesticRegularPayable]},
			{DomesticAdvancePayable.String(), r.ByTag[DomesticAdvancePayable]},
			{ForeignReceivable.String(), r.ByTag[ForeignReceivable]},
			{DomesticRegularReceivable.String(), r.ByTag[DomesticRegularReceivable]},
			{DomesticAdvanceReceivable.String(), r.ByTag[DomesticAdvanceReceivable]},
			{"exchange_loss", r.ExchangeLoss},
			{"service_fee.original", r.ServiceFee.Original.Amount()},
			{"service_fee.base", r.ServiceFee.Base.Amount()},
			{"advance.original", r.Advance.Original.Amount()},
			{"advance.base", r.Advance.Base.Amount()},
			{"cash.base", r.CashBase()},
		}
	case settlement.TypeReceipt:
		return []Bucket{
			{ForeignReceivable.String(), r.ByTag[ForeignReceivable]},
			{DomesticRegularReceivable.String(), r.ByTag[DomesticRegularReceivable]},
			{DomesticAdvanceReceivable.String(), r.ByTag[DomesticAdvanceReceivable]},
			{"payable.offset", r.PayableTotal()},
			{"exchange_loss", r.ExchangeLoss},
			{"service_fee.base", r.ServiceFee.Base.Amount()},
			{"advance.base", r.Advance.Base.Amount()},
		}
	default:
		buckets := make([]Bucket, 0, len(r.ByTag))
		for _, tag := range AllTags() {
			buckets = append(buckets, Bucket{tag.String(), r.ByTag[tag]})
		}
		return buckets
	}
}

// Engine computes calculation results. Compute is pure: the same document
// always yields the same result.
type Engine struct {
	classifier Classifier
}

// NewEngine creates a calculation engine
func NewEngine(classifier Classifier) *Engine {
	return &Engine{classifier: classifier}
}

// Compute classifies and converts the document's items and derives the
// exchange loss, service fee, advance and cash splits.
func (e *Engine) Compute(doc *settlement.Document) CalculationResult {
	base := currencyOr(doc.BaseCurrency, valueobject.DefaultCurrency)
	res := CalculationResult{
		TypeCode:     doc.TypeCode,
		BaseCurrency: base,
		NominalBase:  decimal.Zero,
		ExchangeLoss: decimal.Zero,
		ServiceFee:   zeroSplit(doc.SettlementCurrency, base),
		Advance:      zeroSplit(doc.SettlementCurrency, base),
	}
	for i := range res.ByTag {
		res.ByTag[i] = decimal.Zero
	}

	for _, item := range doc.Items {
		tag := e.classifier.Classify(item.Fee, doc.Counterpart.IsDomestic)
		res.ByTag[tag] = res.ByTag[tag].Add(ToBase(item.Amount, item.ConversionRate(), base))
	}

	if !doc.TypeCode.IsSettlement() {
		return res
	}

	res.NominalBase = ToBase(doc.NominalAmount, doc.SettlementRate, base)
	res.ExchangeLoss = res.NetItemBase().Sub(res.NominalBase)

	advanceBase := ToBase(doc.AdvanceAmount, doc.SettlementRate, base)
	res.Advance = Split{
		Original: valueobject.MustMoney(doc.AdvanceAmount, currencyOr(doc.SettlementCurrency, base)),
		Base:     valueobject.MustMoney(advanceBase, base),
	}

	cash := res.NominalBase.Sub(advanceBase)
	res.CashLegs, res.ServiceFee = e.splitCash(doc, base, cash)
	return res
}

// splitCash allocates the cash amount over the recorded transactions in proportion
// to their amounts, falling back to the document's bank info.
func (e *Engine) splitCash(doc *settlement.Document, base valueobject.Currency, cash decimal.Decimal) ([]CashLeg, Split) {
	places := base.MinorUnits()
	feeOriginal, feeBase := decimal.Zero, decimal.Zero

	var legs []CashLeg
	switch {
	case len(doc.Transactions) > 0:
		total := decimal.Zero
		for _, tx := range doc.Transactions {
			total = total.Add(tx.Amount)
		}
		remaining := cash
		for i, tx := range doc.Transactions {
			share := decimal.Zero
			switch {
			case i == len(doc.Transactions)-1:
				share = remaining
			case !total.IsZero():
				share = cash.Mul(tx.Amount).Div(total).Round(places)
			}
			remaining = remaining.Sub(share)

			rate := tx.ExchangeRate
			if !rate.IsPositive() {
				rate = doc.SettlementRate
			}
			fee := ToBase(tx.ServiceFee, rate, base)
			feeOriginal = feeOriginal.Add(tx.ServiceFee)
			feeBase = feeBase.Add(fee)

			legs = append(legs, CashLeg{
				Account:        tx.CashAccount,
				BankAccountNo:  tx.BankAccountNo,
				Base:           share,
				ServiceFeeBase: fee,
			})
		}
	case doc.Bank != nil:
		fee := ToBase(doc.Bank.ServiceFee, doc.SettlementRate, base)
		feeOriginal = doc.Bank.ServiceFee
		feeBase = fee
		legs = []CashLeg{{
			Account:        doc.Bank.CashAccount,
			BankAccountNo:  doc.Bank.AccountNo,
			Base:           cash,
			ServiceFeeBase: fee,
		}}
	default:
		legs = []CashLeg{{Base: cash, ServiceFeeBase: decimal.Zero}}
	}

	return legs, Split{
		Original: valueobject.MustMoney(feeOriginal, currencyOr(doc.SettlementCurrency, base)),
		Base:     valueobject.MustMoney(feeBase, base),
	}
}

func zeroSplit(original, base valueobject.Currency) Split {
	return Split{
		Original: valueobject.Zero(currencyOr(original, base)),
		Base:     valueobject.Zero(base),
	}
}

func currencyOr(c, fallback valueobject.Currency) valueobject.Currency {
	if c == "" {
		return fallback
	}
	return c
}
