// Package staking implements stakes, delegations, the
// epoch-deferred activation protocol, reward distribution and the
// address-sorted validator weights that vrf.Select draws the slot leader from.
package staking

import "github.com/lvenc/lvenc-node/internal/types"

// DefaultCommissionPct is the commission new validators start with.
const DefaultCommissionPct = 10

// PendingStake is a stake submission awaiting epoch activation.
type PendingStake struct {
	Address        string      `json:"address"`
	Amount         types.Amount `json:"amount"`
	EpochEffective types.Epoch `json:"epochEffective"`
}

// PendingDelegation is a delegation submission awaiting epoch activation.
type PendingDelegation struct {
	Delegator      string      `json:"delegator"`
	Validator      string      `json:"validator"`
	Amount         types.Amount `json:"amount"`
	EpochEffective types.Epoch `json:"epochEffective"`
}

// UnstakeRequest debits active stake immediately but only releases funds to
// the owner's spendable balance at EpochEffective.
type UnstakeRequest struct {
	Address        string      `json:"address"`
	Amount         types.Amount `json:"amount"`
	EpochEffective types.Epoch `json:"epochEffective"`
}

// Delegation is an active (already-activated) delegation.
type Delegation struct {
	Delegator      string      `json:"delegator"`
	Validator      string      `json:"validator"`
	Amount         types.Amount `json:"amount"`
	EpochDelegated types.Epoch `json:"epochDelegated"`
}

// ValidatorInfo is the public view of a validator.
type ValidatorInfo struct {
	Address        string       `json:"address"`
	Stake          types.Amount `json:"stake"`
	DelegatedStake types.Amount `json:"delegatedStake"`
	Commission     uint8        `json:"commission"`
	BlocksCreated  uint64       `json:"blocksCreated"`
	TotalRewards   types.Amount `json:"totalRewards"`
	SlashCount     uint32       `json:"slashCount"`
	IsActive       bool         `json:"isActive"`
	EpochStaked    types.Epoch  `json:"epochStaked"`
}

// Weight is the total stake+delegation backing a validator, used by the VRF
// selector.
type Weight struct {
	Address string
	Weight  uint64
}

// Payout describes a credit owed to an address as a result of an epoch
// transition (an unstake request reaching its effective epoch) or a reward
// distribution. Reward-distribution Payouts are embedded by the producer as
// REWARD-kind transactions in the block it is producing; epoch-transition
// Payouts are applied as transfers out of the staking module account when
// the block that crosses the epoch boundary is applied.
type Payout struct {
	To     string
	Amount types.Amount
	Reason string
}
