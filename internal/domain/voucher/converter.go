package voucher

import (
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ToBase converts an amount into the base currency at rate, rounding half away
// from zero to the base currency's minor units.
func ToBase(amount, rate decimal.Decimal, base valueobject.Currency) decimal.Decimal {
	return amount.Mul(rate).Round(base.MinorUnits())
}
