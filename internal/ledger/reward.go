package ledger

import "github.com/lvenc/lvenc-node/internal/types"

// RewardSchedule describes the block-reward issuance curve:
// reward starts at InitialReward, halves (or reduces by Step) every
// ReductionInterval blocks, floored at MinReward.
type RewardSchedule struct {
	InitialReward     types.Amount
	MinReward         types.Amount
	ReductionInterval uint64
	// HalvingMode, when true, divides by 2 each interval; otherwise the
	// reward decreases linearly by Step each interval.
	HalvingMode bool
	Step        types.Amount
}

// DefaultRewardSchedule is the standard issuance curve (RewardHalvingPeriod
// in core/consensus.go) adapted to lvenc-node's much shorter block time.
func DefaultRewardSchedule() RewardSchedule {
	return RewardSchedule{
		InitialReward:     types.NewAmount(50),
		MinReward:         types.NewAmount(1) / 10,
		ReductionInterval: 200_000,
		HalvingMode:       true,
	}
}

// RewardForBlock computes the block reward for the block at the given
// height (0-indexed; genesis mints nothing).
func (r RewardSchedule) RewardForBlock(index uint64) types.Amount {
	if index == 0 || r.ReductionInterval == 0 {
		return 0
	}
	periods := (index - 1) / r.ReductionInterval
	reward := r.InitialReward
	if r.HalvingMode {
		for i := uint64(0); i < periods && reward > r.MinReward; i++ {
			reward /= 2
		}
	} else {
		dec := types.Amount(periods) * r.Step
		if dec >= reward {
			reward = 0
		} else {
			reward -= dec
		}
	}
	if reward < r.MinReward {
		reward = r.MinReward
	}
	return reward
}
