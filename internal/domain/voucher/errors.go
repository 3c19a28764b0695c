package voucher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error codes reported against a single document
const (
	CodeUnbalanced     = "VOUCHER_UNBALANCED"
	CodeMissingAccount = "ACCOUNT_NOT_MAPPED"
)

// BalancingError is returned when a document's debits and credits differ
type BalancingError struct {
	DocumentRef string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

func (e *BalancingError) Error() string {
	return fmt.Sprintf("voucher for %s is unbalanced: debit %s, credit %s",
		e.DocumentRef, e.Debit.String(), e.Credit.String())
}

// Code returns the error code
func (e *BalancingError) Code() string { return CodeUnbalanced }

// MappingError is returned when a non-zero posting has no account code
type MappingError struct {
	DocumentRef string
	Posting     string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("voucher for %s: no account mapped for %s", e.DocumentRef, e.Posting)
}

// Code returns the error code
func (e *MappingError) Code() string { return CodeMissingAccount }
