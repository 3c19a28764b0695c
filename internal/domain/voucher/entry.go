package voucher

import (
	"github.com/shopspring/decimal"
)

// Side is the side of a voucher entry
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// Entry is one debit or credit line of a voucher, in base currency
type Entry struct {
	AccountCode      string
	Side             Side
	Amount           decimal.Decimal
	CounterpartLabel string
	Memo             string
	DocumentRef      string
}

// DebitAmount returns the amount if the entry is a debit, zero otherwise
func (e Entry) DebitAmount() decimal.Decimal {
	if e.Side == Debit {
		return e.Amount
	}
	return decimal.Zero
}

// CreditAmount returns the amount if the entry is a credit, zero otherwise
func (e Entry) CreditAmount() decimal.Decimal {
	if e.Side == Credit {
		return e.Amount
	}
	return decimal.Zero
}

// Totals returns the debit and credit totals of entries
func Totals(entries []Entry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		debit = debit.Add(e.DebitAmount())
		credit = credit.Add(e.CreditAmount())
	}
	return debit, credit
}
