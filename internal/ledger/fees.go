package ledger

import (
	"math"

	"github.com/lvenc/lvenc-node/internal/types"
)

// FeeWithStakeDiscount applies the optional staking-based discount to a
// base fee: min(50, 10*log10(stake)) percent for stake >= 10. stakeWhole
// is the caller's active stake expressed in whole tokens, not base units.
func FeeWithStakeDiscount(base types.Amount, stakeWhole float64) types.Amount {
	if stakeWhole < 10 {
		return base
	}
	discountPct := 10 * math.Log10(stakeWhole)
	if discountPct > 50 {
		discountPct = 50
	}
	if discountPct <= 0 {
		return base
	}
	discounted := float64(base) * (1 - discountPct/100)
	if discounted < 0 {
		discounted = 0
	}
	return types.Amount(discounted)
}
