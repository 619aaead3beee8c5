// Package money wraps go-money for currency-safe amounts kept in integer
// minor units, with decimal conversions for reporting math.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is a monetary amount in a single ISO-4217 currency, stored in
// minor units.
type Money struct {
	m *money.Money
}

// New creates Money from minor units and a currency code.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, currencyCode)}
}

// Zero returns a zero amount in the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// ValidCurrency reports whether code is a known ISO-4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsPositive returns true if the amount is greater than zero
func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

// Add adds two amounts. Returns an error if the currencies differ.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}
	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Display returns a localized string for display, e.g. "$15.99".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// String returns the amount as a plain decimal string, e.g. "15.99".
func (m *Money) String() string {
	return m.ToDecimal().String()
}

// ToDecimal converts to a major-unit decimal for precise calculations.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(m.m.Currency().Fraction))
	return d.Div(divisor)
}

// moneyJSON is the wire shape of a Money value
type moneyJSON struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Display     string `json:"display"`
}

// MarshalJSON implements json.Marshaler
func (m *Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		AmountMinor: m.Amount(),
		Currency:    m.Currency(),
		Display:     m.Display(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !ValidCurrency(raw.Currency) {
		return fmt.Errorf("unknown currency %q", raw.Currency)
	}
	m.m = money.New(raw.AmountMinor, raw.Currency)
	return nil
}
