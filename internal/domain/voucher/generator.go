package voucher

import (
	"fmt"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// DocumentRef identifies the document a voucher is generated for
type DocumentRef struct {
	Reference       string
	CounterpartName string
}

// RefOf returns the voucher reference of a document
func RefOf(doc *settlement.Document) DocumentRef {
	return DocumentRef{Reference: doc.Reference(), CounterpartName: doc.Counterpart.Name}
}

var tagMemos = [...]string{
	ForeignPayable:            "Foreign payables",
	DomesticRegularPayable:    "Domestic payables",
	DomesticAdvancePayable:    "Advance tariffs payable",
	ForeignReceivable:         "Foreign receivables",
	DomesticRegularReceivable: "Domestic receivables",
	DomesticAdvanceReceivable: "Advance tariffs receivable",
}

// Generator maps calculation results to voucher entries
type Generator struct {
	plan AccountPlan
}

// NewGenerator creates a generator posting to the given account plan
func NewGenerator(plan AccountPlan) *Generator {
	return &Generator{plan: plan}
}

// Generate returns the entries of one document in fixed order: payable buckets,
// receivable buckets, exchange loss, service fee, advance offset, then cash.
// Zero amounts are omitted and debits must equal credits.
func (g *Generator) Generate(ref DocumentRef, result CalculationResult) ([]Entry, error) {
	b := &entryBuilder{ref: ref, places: result.BaseCurrency.MinorUnits()}

	if result.TypeCode.IsSettlement() {
		g.settlementEntries(b, result)
	} else {
		g.recognitionEntries(b, result)
	}
	if b.err != nil {
		return nil, b.err
	}

	debit, credit := Totals(b.entries)
	if !debit.Round(b.places).Equal(credit.Round(b.places)) {
		return nil, &BalancingError{DocumentRef: ref.Reference, Debit: debit, Credit: credit}
	}
	return b.entries, nil
}

func (g *Generator) settlementEntries(b *entryBuilder, r CalculationResult) {
	receipt := r.TypeCode == settlement.TypeReceipt

	for _, tag := range AllTags() {
		side := Credit
		if tag.IsPayable() {
			side = Debit
		}
		b.post(g.plan.For(tag).Settlement, side, r.Amount(tag), tagMemos[tag])
	}

	exchangeSide, advanceSide, advanceAccount, cashSide := Credit, Credit, g.plan.PrepaidAdvance, Credit
	if receipt {
		exchangeSide, advanceSide, advanceAccount, cashSide = Debit, Debit, g.plan.AdvanceReceipt, Debit
	}

	b.post(g.plan.ExchangeLoss, exchangeSide, r.ExchangeLoss, "Exchange gain/loss")
	b.post(g.plan.ServiceFee, Debit, r.ServiceFee.Base.Amount(), "Bank charges")
	b.post(advanceAccount, advanceSide, r.Advance.Base.Amount(), "Advance offset")

	for _, leg := range r.CashLegs {
		account := leg.Account
		if account == "" {
			account = g.plan.DefaultCash
		}
		amount := leg.Base.Add(leg.ServiceFeeBase)
		if receipt {
			amount = leg.Base.Sub(leg.ServiceFeeBase)
		}
		memo := "Cash"
		if leg.BankAccountNo != "" {
			memo = "Cash " + leg.BankAccountNo
		}
		b.post(account, cashSide, amount, memo)
	}
}

func (g *Generator) recognitionEntries(b *entryBuilder, r CalculationResult) {
	for _, tag := range AllTags() {
		acc := g.plan.For(tag)
		amount := r.Amount(tag)
		if tag.IsPayable() {
			b.post(acc.Recognition, Debit, amount, tagMemos[tag])
			b.post(acc.Settlement, Credit, amount, tagMemos[tag])
		} else {
			b.post(acc.Settlement, Debit, amount, tagMemos[tag])
			b.post(acc.Recognition, Credit, amount, tagMemos[tag])
		}
	}
}

type entryBuilder struct {
	ref     DocumentRef
	places  int32
	entries []Entry
	err     error
}

// post appends an entry on its natural side; negative amounts go to the opposite side
func (b *entryBuilder) post(account string, side Side, amount decimal.Decimal, memo string) {
	if b.err != nil {
		return
	}
	amount = amount.Round(b.places)
	if amount.IsZero() {
		return
	}
	if account == "" {
		b.err = &MappingError{DocumentRef: b.ref.Reference, Posting: memo}
		return
	}
	if amount.IsNegative() {
		side = side.Opposite()
		amount = amount.Neg()
	}
	b.entries = append(b.entries, Entry{
		AccountCode:      account,
		Side:             side,
		Amount:           amount,
		CounterpartLabel: b.ref.CounterpartName,
		Memo:             fmt.Sprintf("%s %s", b.ref.Reference, memo),
		DocumentRef:      b.ref.Reference,
	})
}
