// Package money holds the integer minor-unit amount type used across the
// reconciliation engine. Conversions to and from decimal text happen only at
// the edges (HTTP, CLI, AI extraction).
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money is an amount expressed in cents.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

var (
	// ErrInvalidAmount reports text that is not a decimal amount.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrPrecision reports amounts with more than two fractional digits.
	ErrPrecision = errors.New("money: amount has sub-cent precision")
)

// FromCents wraps a minor-unit count.
func FromCents(cents int64) Money { return Money(cents) }

// FromDecimal converts an exact decimal value. Values finer than one cent are rejected.
func FromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	return fromShifted(shifted, d)
}

// FromFloat rounds a best-effort floating amount (AI extraction output) to the nearest cent.
func FromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	d := decimal.NewFromFloat(f)
	return fromShifted(d.Round(2).Shift(2), d)
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// fromShifted converts a whole number of cents, rejecting values outside int64.
func fromShifted(shifted, original decimal.Decimal) (Money, error) {
	if shifted.Cmp(maxCents) > 0 || shifted.Cmp(minCents) < 0 {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, original.String())
	}
	return Money(shifted.IntPart()), nil
}

// Parse reads "1234.50", "1.234,50" or "R$ 1.234,50".
func Parse(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "R$")
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Cents returns the minor-unit count.
func (m Money) Cents() int64 { return int64(m) }

// Add returns m + o.
func (m Money) Add(o Money) Money { return m + o }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return m - o }

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// IsPositive reports m > 0.
func (m Money) IsPositive() bool { return m > 0 }

// IsZero reports m == 0.
func (m Money) IsZero() bool { return m == 0 }

// Decimal returns the exact decimal value in currency units.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }

// String renders the canonical form, e.g. "-12.05".
func (m Money) String() string { return m.Decimal().StringFixed(2) }

// Format renders the amount with the grouping and decimal marks of tag.
func (m Money) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(m.Decimal().InexactFloat64(), number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Sum adds every amount.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total += v
	}
	return total
}
