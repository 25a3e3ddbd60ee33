package staking

import (
	"fmt"
	"math/big"

	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

// DistributeRewards splits a block reward between the producing validator
// and its delegators:
//
//	commission    = totalReward * commission% / 100
//	remainder     = totalReward - commission
//	validatorCut  = remainder * selfStake / (selfStake + delegatedStake)
//	delegatorPool = remainder - validatorCut
//
// delegatorPool is then split pro-rata by each delegator's share of
// delegatedStake. The validator's own Payout always comes first.
func (m *Manager) DistributeRewards(validator string, totalReward types.Amount) ([]Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.validators[validator]
	if !ok {
		return nil, fmt.Errorf("distributeRewards %s: %w", validator, nodeerr.ErrNotAValidator)
	}

	commission := totalReward * types.Amount(v.Commission) / 100
	remainder := totalReward - commission

	// a*b/c with a 128-bit-wide product: amounts carry 9 decimals, so
	// reward*stake overflows uint64 for ordinary values.
	mulDiv := func(a, b, c uint64) uint64 {
		r := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
		return r.Div(r, new(big.Int).SetUint64(c)).Uint64()
	}

	total := uint64(v.Stake) + uint64(v.DelegatedStake)
	var validatorCut types.Amount
	if total > 0 {
		validatorCut = types.Amount(mulDiv(uint64(remainder), uint64(v.Stake), total))
	}
	validatorTotal := commission + validatorCut
	delegatorPool := remainder - validatorCut

	payouts := make([]Payout, 0, 1+len(m.delegationsByValidator[validator]))
	payouts = append(payouts, Payout{To: validator, Amount: validatorTotal, Reason: "block-reward"})

	if byDelegator, ok := m.delegationsByValidator[validator]; ok && v.DelegatedStake > 0 {
		for delegator, d := range byDelegator {
			if d.Amount == 0 {
				continue
			}
			share := types.Amount(mulDiv(uint64(delegatorPool), uint64(d.Amount), uint64(v.DelegatedStake)))
			if share == 0 {
				continue
			}
			payouts = append(payouts, Payout{To: delegator, Amount: share, Reason: "delegation-reward"})
		}
	}

	v.TotalRewards = v.TotalRewards.Add(validatorTotal)
	return payouts, nil
}
