// Package money provides a fixed-point monetary amount tied to a currency's
// minor unit. All arithmetic stays in integer minor-unit space; exact decimal
// intermediates are used where a computation cannot be expressed in integers.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidAmount    = errors.New("invalid_amount")
)

// minorUnits maps ISO 4217 codes to their number of minor-unit digits.
// Currencies not listed default to 2.
var minorUnits = map[string]int32{
	"BHD": 3,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"VND": 0,
}

// Money is an exact monetary amount in a currency's minor unit (e.g. cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns a Money of amount minor units in the given currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: normalize(currency)}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: normalize(currency)}
}

// FromDecimal rounds an exact minor-unit decimal to a Money value. This is
// the single rounding point for derived amounts.
func FromDecimal(d decimal.Decimal, currency string) Money {
	return Money{Amount: d.Round(0).IntPart(), Currency: normalize(currency)}
}

func normalize(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Decimal returns the amount as an exact minor-unit decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, 0)
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MulInt returns m scaled by an integer factor.
func (m Money) MulInt(factor int64) Money {
	return Money{Amount: m.Amount * factor, Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Validate checks that the value carries a currency code.
func (m Money) Validate() error {
	if len(m.Currency) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}

// Major returns the amount in major units (e.g. dollars) as an exact decimal.
// Display conversion happens only at formatting boundaries.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Amount, -exponent(m.Currency))
}

// String formats the amount in major units with the currency code appended.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Major().StringFixed(exponent(m.Currency)), m.Currency)
}

func exponent(currency string) int32 {
	if e, ok := minorUnits[currency]; ok {
		return e
	}
	return 2
}

type moneyJSON struct {
	Amount   *int64 `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON emits the structured {amount, currency} form. Money never
// crosses a serialization boundary as a bare floating-point number.
func (m Money) MarshalJSON() ([]byte, error) {
	amount := m.Amount
	return json.Marshal(moneyJSON{Amount: &amount, Currency: m.Currency})
}

// UnmarshalJSON reconstructs the exact minor-unit integer and rejects
// fractional or missing amounts.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		// A fractional amount fails integer decoding, which is the point:
		// floats never round-trip through this boundary.
		return err
	}
	if raw.Amount == nil {
		return ErrInvalidAmount
	}
	currency := normalize(raw.Currency)
	if len(currency) != 3 {
		return ErrInvalidCurrency
	}
	m.Amount = *raw.Amount
	m.Currency = currency
	return nil
}
