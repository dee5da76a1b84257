// Package types provides common value types used across subledger.
package types

import (
	"encoding/json"
	"fmt"
)

// TokenDecimals is the number of decimal places of the payment token's
// base unit (stroops: 1 token = 10^7 base units).
const TokenDecimals = 7

// Amount is a quantity of the payment token in its smallest unit.
// All arithmetic is integer-only.
//
// Examples:
//   - Amount(1_000_000) = 0.1000000
//   - Amount(25_000_000) = 2.5000000
type Amount int64

// Add adds two amounts.
func (a Amount) Add(other Amount) Amount { return a + other }

// Subtract subtracts another amount.
func (a Amount) Subtract(other Amount) Amount { return a - other }

// Multiply multiplies the amount by a quantity.
func (a Amount) Multiply(qty int64) Amount { return a * Amount(qty) }

// Cycles returns how many whole charges of price fit into a.
// A non-positive price yields zero.
func (a Amount) Cycles(price Amount) int64 {
	if price <= 0 || a <= 0 {
		return 0
	}
	return int64(a / price)
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// FormatMajor returns the amount in whole tokens with TokenDecimals places:
// "0.1000000" for Amount(1_000_000).
func (a Amount) FormatMajor() string {
	divisor := int64(1)
	for i := 0; i < TokenDecimals; i++ {
		divisor *= 10
	}

	v := int64(a)
	isNegative := v < 0
	if isNegative {
		v = -v
	}

	major := v / divisor
	minor := v % divisor

	format := fmt.Sprintf("%%d.%%0%dd", TokenDecimals)
	result := fmt.Sprintf(format, major, minor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns the human-readable form, identical to FormatMajor.
func (a Amount) String() string { return a.FormatMajor() }

// MarshalJSON emits the raw base-unit integer so that clients never parse
// decimals to move money.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(a))
}

// UnmarshalJSON accepts the raw base-unit integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(v)
	return nil
}

