// Package types holds the primitive value types shared by every core
// subsystem: Amount, Nonce, Slot, Epoch, Timestamp.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Decimals is the fixed-point precision of Amount (9 decimal places).
const Decimals = 9

// unit is 10^Decimals, the number of base units per whole token.
const unit = 1_000_000_000

// Amount is a non-negative fixed-point quantity, stored as base units
// (value * 10^Decimals) in a uint64. Arithmetic on Amount is exact integer
// arithmetic; there is no floating point in the money path.
type Amount uint64

// NewAmount constructs an Amount from a whole-token count.
func NewAmount(whole uint64) Amount { return Amount(whole * unit) }

// ParseAmount parses a decimal string ("12.5") into base units.
func ParseAmount(s string) (Amount, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		return 0, fmt.Errorf("amount: negative values are not allowed: %q", s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount: invalid integer part %q: %w", whole, err)
	}
	var f uint64
	if hasFrac {
		if len(frac) > Decimals {
			return 0, fmt.Errorf("amount: too many decimal places in %q (max %d)", s, Decimals)
		}
		frac = frac + strings.Repeat("0", Decimals-len(frac))
		f, err = strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount: invalid fractional part %q: %w", frac, err)
		}
	}
	return Amount(w*unit + f), nil
}

// String renders the amount in decimal form, e.g. "12.500000000".
func (a Amount) String() string {
	w := uint64(a) / unit
	f := uint64(a) % unit
	return fmt.Sprintf("%d.%09d", w, f)
}

// Add returns a+b. Overflow is not expected at realistic supply levels and
// is not separately guarded.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a-b, or an error if b > a (Amount must stay non-negative).
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, fmt.Errorf("amount: subtraction underflow: %s - %s", a, b)
	}
	return a - b, nil
}

// Nonce is a strictly monotonic per-address counter.
type Nonce uint64

// Slot is a monotonic slot index, floor((now-genesisTime)/slotDuration).
type Slot uint64

// Epoch is a monotonic epoch index, incremented every EPOCH_DURATION blocks.
type Epoch uint64

// Timestamp is a millisecond-epoch wall-clock timestamp.
type Timestamp int64
