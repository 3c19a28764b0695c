package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	CNY Currency = "CNY" // Chinese Yuan (default)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	JPY Currency = "JPY" // Japanese Yen
	HKD Currency = "HKD" // Hong Kong Dollar
)

// DefaultCurrency is the default base currency for the system
const DefaultCurrency = CNY

// minorUnits lists the number of decimal places of each supported currency
var minorUnits = map[Currency]int32{
	CNY: 2,
	USD: 2,
	EUR: 2,
	GBP: 2,
	JPY: 0,
	HKD: 2,
}

// ParseCurrency parses a currency code, case-insensitively
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency: %q", code)
	}
	return c, nil
}

// IsValid reports whether the currency is supported
func (c Currency) IsValid() bool {
	_, ok := minorUnits[c]
	return ok
}

// MinorUnits returns the number of decimal places amounts in this currency are kept at.
// Unknown currencies use two places.
func (c Currency) MinorUnits() int32 {
	if places, ok := minorUnits[c]; ok {
		return places
	}
	return 2
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// MustMoney creates Money and panics on an empty currency
func MustMoney(amount decimal.Decimal, currency Currency) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns a new Money with the sum of both amounts
// Returns error if currencies don't match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{
		amount:   m.amount.Add(other.amount),
		currency: m.currency,
	}, nil
}

// MustAdd adds two Money values, panics if currencies don't match
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Negate returns a new Money with the sign reversed
func (m Money) Negate() Money {
	return Money{
		amount:   m.amount.Neg(),
		currency: m.currency,
	}
}

// Round returns a new Money rounded half away from zero to the currency's minor units
func (m Money) Round() Money {
	return Money{
		amount:   m.amount.Round(m.currency.MinorUnits()),
		currency: m.currency,
	}
}

// Convert converts the amount into the target currency at the given rate and
// rounds the result to the target's minor units.
func (m Money) Convert(rate decimal.Decimal, target Currency) Money {
	return Money{
		amount:   m.amount.Mul(rate).Round(target.MinorUnits()),
		currency: target,
	}
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.currency, m.amount.StringFixed(m.currency.MinorUnits()))
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(m.currency.MinorUnits()),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var aux struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount in JSON: %w", err)
	}
	m.amount = amount
	m.currency = aux.Currency
	return nil
}
