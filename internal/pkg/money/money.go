// internal/pkg/money/money.go
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a request omits the currency code.
const DefaultCurrency = "CAD"

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidCurrency  = errors.New("invalid currency code")
)

var dec100 = decimal.NewFromInt(100)

// Money is an amount in minor units (cents) with an ISO currency code.
// Values are never mutated; every operation returns a new Money.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: normalize(currency)}
}

func Zero(currency string) Money {
	return New(0, currency)
}

func normalize(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// Validate checks that the currency is a three letter code.
func (m Money) Validate() error {
	if len(m.Currency) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, m.Currency)
	}
	return nil
}

func (m Money) sameCurrency(o Money) error {
	if normalize(m.Currency) != normalize(o.Currency) {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return New(m.Amount+o.Amount, m.Currency), nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return New(m.Amount-o.Amount, m.Currency), nil
}

func (m Money) Neg() Money {
	return New(-m.Amount, m.Currency)
}

func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Cmp returns -1, 0 or 1 comparing m with o.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	}
	return 0, nil
}

func (m Money) Equal(o Money) bool {
	return normalize(m.Currency) == normalize(o.Currency) && m.Amount == o.Amount
}

// WithinTolerance reports whether |m - o| <= tolerance minor units.
func (m Money) WithinTolerance(o Money, tolerance int64) (bool, error) {
	diff, err := m.Sub(o)
	if err != nil {
		return false, err
	}
	return diff.Abs().Amount <= tolerance, nil
}

// Min returns the smaller of m and o.
func (m Money) Min(o Money) (Money, error) {
	c, err := m.Cmp(o)
	if err != nil {
		return Money{}, err
	}
	if c <= 0 {
		return m, nil
	}
	return o, nil
}

// Sum adds amounts that must all share currency.
func Sum(currency string, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Decimal converts to major units, e.g. 4500 -> 45.00.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(dec100)
}

// MajorString formats the amount in major units with two decimals ("45.00").
func (m Money) MajorString() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) String() string {
	return m.MajorString() + " " + m.Currency
}

// FromDecimal converts a major-unit decimal into Money, rounding half away from zero.
func FromDecimal(d decimal.Decimal, currency string) Money {
	return New(d.Mul(dec100).Round(0).IntPart(), currency)
}

// ParseMajor parses "45.00" style input.
func ParseMajor(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return FromDecimal(d, currency), nil
}
