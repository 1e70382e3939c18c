// Package money holds currency amounts as integer minor units (cents) so
// installment arithmetic never drifts. Amounts cross the wire and the database
// as base-currency decimals with two fraction digits.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the currency's minor unit.
type Cents int64

const fractionDigits = 2

// MaxAmount is the largest magnitude a numeric(12,2) column holds,
// 9999999999.99.
const MaxAmount Cents = 999_999_999_999

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOutOfRange    = errors.New("amount out of range")
)

var (
	hundred    = decimal.NewFromInt(100)
	maxDecimal = decimal.NewFromInt(int64(MaxAmount))
)

// FromDecimal converts a decimal amount, rejecting values with more than two
// fraction digits or a magnitude above MaxAmount.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidAmount, d.String(), fractionDigits)
	}
	if scaled.Abs().GreaterThan(maxDecimal) {
		return 0, outOfRange(d)
	}
	return Cents(scaled.IntPart()), nil
}

func outOfRange(d decimal.Decimal) error {
	return fmt.Errorf("%w: %w: %s exceeds %s", ErrInvalidAmount, ErrOutOfRange, d.String(), MaxAmount)
}

// Parse reads a base-currency decimal such as "300", "300.5" or "300.50".
func Parse(raw string) (Cents, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for literals in tests and seed data.
func MustParse(raw string) Cents {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -fractionDigits)
}

// String renders the amount with exactly two fraction digits.
func (c Cents) String() string {
	return c.Decimal().StringFixed(fractionDigits)
}

func (c Cents) IsNegative() bool {
	return c < 0
}

// Mul multiplies by an integer quantity. Callers holding unchecked input use
// MulQty.
func (c Cents) Mul(qty int) Cents {
	return c * Cents(qty)
}

// MulQty multiplies by a quantity and fails when the product leaves the
// representable range.
func (c Cents) MulQty(qty int) (Cents, error) {
	product := decimal.NewFromInt(int64(c)).Mul(decimal.NewFromInt(int64(qty)))
	if product.Abs().GreaterThan(maxDecimal) {
		return 0, outOfRange(product.Div(hundred))
	}
	return Cents(product.IntPart()), nil
}

// Add sums two amounts and fails when the result leaves the representable
// range.
func Add(a, b Cents) (Cents, error) {
	sum := decimal.NewFromInt(int64(a)).Add(decimal.NewFromInt(int64(b)))
	if sum.Abs().GreaterThan(maxDecimal) {
		return 0, outOfRange(sum.Div(hundred))
	}
	return Cents(sum.IntPart()), nil
}

// Sum adds amounts.
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}

// Split divides total into n parts of equal size, truncated to the minor unit,
// and adds the remainder to the last part so the parts sum back to total.
func Split(total Cents, n int) ([]Cents, error) {
	if n < 1 {
		return nil, fmt.Errorf("split into %d parts", n)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: negative total %s", ErrInvalidAmount, total)
	}
	base := total / Cents(n)
	parts := make([]Cents, n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += total - base*Cents(n)
	return parts, nil
}

// MarshalJSON writes a JSON number with two fraction digits, e.g. 300.00.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (c *Cents) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "null" {
		*c = 0
		return nil
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the amount as a numeric(12,2) literal.
func (c Cents) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c *Cents) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = 0
		return nil
	case int64:
		parsed, err := FromDecimal(decimal.NewFromInt(v))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case float64:
		parsed, err := FromDecimal(decimal.NewFromFloat(v).Round(fractionDigits))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}
