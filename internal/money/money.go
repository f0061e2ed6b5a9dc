package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrInvalidRate     = errors.New("commission rate must be between 0 and 1")
)

var hundred = decimal.NewFromInt(100)

// ParseMinor converts a major-unit decimal string ("600", "12.5", "0.99")
// into minor units.
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !value.Equal(value.Truncate(2)) {
		return 0, ErrTooManyDecimals
	}
	minor := value.Mul(hundred)
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// ParsePositiveMinor is ParseMinor restricted to amounts greater than zero.
func ParsePositiveMinor(input string) (int64, error) {
	amount, err := ParseMinor(input)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	formatted := fmt.Sprintf("%d.%02d", value/100, value%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}

func ParseRate(input string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidRate
	}
	return rate, nil
}

// Commission returns the platform share of gross, rounded half-to-even to
// the nearest minor unit.
func Commission(gross int64, rate decimal.Decimal) int64 {
	if gross <= 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(gross).Mul(rate).RoundBank(0).IntPart()
}

// Split divides gross into the vendor net and the platform commission.
func Split(gross int64, rate decimal.Decimal) (net int64, commission int64) {
	commission = Commission(gross, rate)
	return gross - commission, commission
}
