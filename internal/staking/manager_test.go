package staking

import (
	"testing"

	"github.com/lvenc/lvenc-node/internal/types"
)

func newTestManager() *Manager {
	return New(Config{
		MinStake:      types.NewAmount(100),
		MinDelegation: types.NewAmount(10),
		EpochDuration: 100,
	})
}

func TestStakeBootstrapActivatesImmediately(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("A", types.NewAmount(500)); err != nil {
		t.Fatalf("bootstrap stake: %v", err)
	}
	vals := m.GetValidators()
	if len(vals) != 1 || vals[0].Address != "A" {
		t.Fatalf("expected [A] active immediately, got %v", vals)
	}
	if vals[0].Stake != types.NewAmount(500) {
		t.Fatalf("stake = %s, want 500", vals[0].Stake)
	}
}

func TestStakeBelowMinimumRejected(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("A", types.NewAmount(10)); err == nil {
		t.Fatal("expected error for stake below minimum")
	}
}

func TestStakeAfterBootstrapIsDeferredToNextEpoch(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("A", types.NewAmount(500)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := m.Stake("B", types.NewAmount(300)); err != nil {
		t.Fatalf("second stake: %v", err)
	}

	vals := m.GetValidators()
	if len(vals) != 1 {
		t.Fatalf("B should not be active yet, got %v", vals)
	}
	if m.GetPendingStake("B") != types.NewAmount(300) {
		t.Fatalf("B should be pending")
	}

	m.TransitionEpoch(100)

	vals = m.GetValidators()
	if len(vals) != 2 {
		t.Fatalf("expected [A B] active after epoch transition, got %v", vals)
	}
}

func TestDelegationRequiresActiveValidator(t *testing.T) {
	m := newTestManager()
	if err := m.Delegate("D", "V", types.NewAmount(50)); err == nil {
		t.Fatal("expected error delegating to unknown/inactive validator")
	}
	if err := m.Stake("V", types.NewAmount(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := m.Delegate("D", "V", types.NewAmount(1000)); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if m.GetDelegation("D", "V") != 0 {
		t.Fatalf("delegation should still be pending, not yet active")
	}
	m.TransitionEpoch(100)
	if m.GetDelegation("D", "V") != types.NewAmount(1000) {
		t.Fatalf("delegation should be active after epoch transition")
	}
}

func TestDistributeRewardsSplitsCommissionAndDelegatorShare(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("V", types.NewAmount(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := m.Delegate("D", "V", types.NewAmount(1000)); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	m.TransitionEpoch(100)

	payouts, err := m.DistributeRewards("V", types.NewAmount(10))
	if err != nil {
		t.Fatalf("distributeRewards: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("expected 2 payouts (validator + delegator), got %d: %v", len(payouts), payouts)
	}

	want := map[string]types.Amount{
		"V": types.NewAmount(5) + types.NewAmount(1)/2, // 5.5
		"D": types.NewAmount(4) + types.NewAmount(1)/2, // 4.5
	}
	for _, p := range payouts {
		if p.Amount != want[p.To] {
			t.Fatalf("payout to %s = %s, want %s", p.To, p.Amount, want[p.To])
		}
	}
}

func TestRequestUnstakeReleasesAtNextEpoch(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("A", types.NewAmount(500)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := m.RequestUnstake("A", types.NewAmount(200)); err != nil {
		t.Fatalf("requestUnstake: %v", err)
	}
	if m.GetStake("A") != types.NewAmount(300) {
		t.Fatalf("stake should debit immediately, got %s", m.GetStake("A"))
	}
	payouts := m.TransitionEpoch(100)
	if len(payouts) != 1 || payouts[0].Amount != types.NewAmount(200) {
		t.Fatalf("expected unstake release payout of 200, got %v", payouts)
	}
}

func TestUndelegateHasNoCooldown(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("V", types.NewAmount(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := m.Delegate("D", "V", types.NewAmount(200)); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	m.TransitionEpoch(100)

	payout, err := m.Undelegate("D", "V", types.NewAmount(200))
	if err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if payout.Amount != types.NewAmount(200) {
		t.Fatalf("payout = %s, want 200", payout.Amount)
	}
	if m.GetDelegation("D", "V") != 0 {
		t.Fatalf("delegation should be fully withdrawn")
	}
}

func TestActiveValidatorWeightsSortedByAddress(t *testing.T) {
	m := newTestManager()
	if err := m.Stake("B", types.NewAmount(500)); err != nil {
		t.Fatalf("stake B: %v", err)
	}
	if err := m.Stake("A", types.NewAmount(500)); err != nil {
		t.Fatalf("stake A: %v", err)
	}
	m.TransitionEpoch(100)
	weights := m.ActiveValidatorWeights()
	if len(weights) != 2 || weights[0].Address != "A" || weights[1].Address != "B" {
		t.Fatalf("expected weights sorted by address, got %v", weights)
	}
}
