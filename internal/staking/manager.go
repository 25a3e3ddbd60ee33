package staking

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

// Config bundles the tunables for a Manager.
type Config struct {
	MinStake      types.Amount
	MinDelegation types.Amount
	EpochDuration uint64 // blocks per epoch
	Logger        *log.Logger
}

// Manager owns the validator registry, delegations, and every pending
// epoch-deferred mutation. It is not a package-level singleton: callers
// (the node package) hold the one instance that matters and pass it to
// collaborators explicitly.
type Manager struct {
	mu sync.RWMutex

	minStake      types.Amount
	minDelegation types.Amount
	epochDuration uint64
	logger        *log.Logger

	currentEpoch    types.Epoch
	epochStartBlock uint64

	validators             map[string]*ValidatorInfo
	delegationsByValidator map[string]map[string]*Delegation

	pendingStakes      map[string]*PendingStake
	pendingDelegations []*PendingDelegation
	unstakeRequests    []*UnstakeRequest
}

// New constructs an empty Manager at epoch 0.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Manager{
		minStake:               cfg.MinStake,
		minDelegation:          cfg.MinDelegation,
		epochDuration:          cfg.EpochDuration,
		logger:                 cfg.Logger,
		validators:             make(map[string]*ValidatorInfo),
		delegationsByValidator: make(map[string]map[string]*Delegation),
		pendingStakes:          make(map[string]*PendingStake),
	}
}

// CurrentEpoch returns the active epoch counter.
func (m *Manager) CurrentEpoch() types.Epoch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentEpoch
}

// ShouldTransitionEpoch reports whether the epoch boundary has been reached
// as of the block about to be produced/applied at newBlockIndex.
func (m *Manager) ShouldTransitionEpoch(newBlockIndex uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.epochDuration == 0 {
		return false
	}
	return newBlockIndex-m.epochStartBlock >= m.epochDuration
}

func (m *Manager) hasActiveValidatorLocked() bool {
	for _, v := range m.validators {
		if v.IsActive {
			return true
		}
	}
	return false
}

// Stake processes a STAKE transaction. The bootstrap rule is the sole
// exception to epoch-deferred activation: with zero active validators,
// the first stake activates immediately.
func (m *Manager) Stake(addr string, amount types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount < m.minStake {
		return fmt.Errorf("stake %s: %w", addr, nodeerr.ErrBelowMinStake)
	}

	if !m.hasActiveValidatorLocked() {
		v, ok := m.validators[addr]
		if !ok {
			v = &ValidatorInfo{Address: addr, Commission: DefaultCommissionPct, EpochStaked: m.currentEpoch}
			m.validators[addr] = v
		}
		v.Stake = v.Stake.Add(amount)
		v.IsActive = v.Stake >= m.minStake
		m.logger.WithFields(log.Fields{"addr": addr, "amount": amount.String()}).
			Info("staking: bootstrap stake activated immediately (zero active validators)")
		return nil
	}

	p, ok := m.pendingStakes[addr]
	eff := m.currentEpoch + 1
	if ok {
		p.Amount = p.Amount.Add(amount)
		if eff > p.EpochEffective {
			p.EpochEffective = eff
		}
	} else {
		m.pendingStakes[addr] = &PendingStake{Address: addr, Amount: amount, EpochEffective: eff}
	}
	return nil
}

// RequestUnstake deducts amount from active stake immediately and schedules
// the funds for release at the next epoch boundary.
func (m *Manager) RequestUnstake(addr string, amount types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.validators[addr]
	if !ok || v.Stake < amount {
		return fmt.Errorf("requestUnstake %s: %w", addr, nodeerr.ErrInsufficientStake)
	}
	v.Stake, _ = v.Stake.Sub(amount)
	m.unstakeRequests = append(m.unstakeRequests, &UnstakeRequest{
		Address: addr, Amount: amount, EpochEffective: m.currentEpoch + 1,
	})
	// Deactivation happens at the next UpdateValidator call, not
	// retroactively here.
	return nil
}

// updateValidatorStatusLocked recomputes IsActive for a single validator.
func (m *Manager) updateValidatorStatusLocked(addr string) {
	v, ok := m.validators[addr]
	if !ok {
		return
	}
	v.IsActive = v.Stake >= m.minStake
}

// UpdateValidator is the public entry point for the deferred
// deactivation check.
func (m *Manager) UpdateValidator(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateValidatorStatusLocked(addr)
}

// Delegate processes a DELEGATE transaction.
func (m *Manager) Delegate(delegator, validator string, amount types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount < m.minDelegation {
		return fmt.Errorf("delegate %s->%s: %w", delegator, validator, nodeerr.ErrBelowMinDelegation)
	}
	v, ok := m.validators[validator]
	if !ok || !v.IsActive || v.Stake < m.minStake {
		return fmt.Errorf("delegate %s->%s: %w", delegator, validator, nodeerr.ErrValidatorInactive)
	}
	m.pendingDelegations = append(m.pendingDelegations, &PendingDelegation{
		Delegator: delegator, Validator: validator, Amount: amount, EpochEffective: m.currentEpoch + 1,
	})
	return nil
}

// Undelegate takes effect immediately (no cooldown in this version) and
// returns the payout owed back to the delegator.
func (m *Manager) Undelegate(delegator, validator string, amount types.Amount) (Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDelegator, ok := m.delegationsByValidator[validator]
	if !ok {
		return Payout{}, fmt.Errorf("undelegate %s->%s: %w", delegator, validator, nodeerr.ErrInsufficientStake)
	}
	d, ok := byDelegator[delegator]
	if !ok || d.Amount < amount {
		return Payout{}, fmt.Errorf("undelegate %s->%s: %w", delegator, validator, nodeerr.ErrInsufficientStake)
	}
	d.Amount, _ = d.Amount.Sub(amount)
	if v, ok := m.validators[validator]; ok {
		v.DelegatedStake, _ = v.DelegatedStake.Sub(amount)
	}
	if d.Amount == 0 {
		delete(byDelegator, delegator)
	}
	return Payout{To: delegator, Amount: amount, Reason: "undelegate"}, nil
}

// SetCommission updates a validator's commission percentage (0-100). The
// caller is responsible for having authenticated that the request was
// signed by the validator itself.
func (m *Manager) SetCommission(validator string, pct uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validators[validator]
	if !ok {
		return fmt.Errorf("setCommission %s: %w", validator, nodeerr.ErrNotAValidator)
	}
	if pct > 100 {
		return fmt.Errorf("setCommission %s: commission must be 0-100", validator)
	}
	v.Commission = pct
	return nil
}

// TransitionEpoch advances the epoch counter and activates every pending
// mutation whose EpochEffective has arrived. It is the only place active
// stake and delegation amounts grow, and returns the payouts owed for
// unstake requests that were released.
func (m *Manager) TransitionEpoch(newBlockIndex uint64) []Payout {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentEpoch++
	m.epochStartBlock = newBlockIndex

	for addr, p := range m.pendingStakes {
		if p.EpochEffective > m.currentEpoch {
			continue
		}
		v, ok := m.validators[addr]
		if !ok {
			v = &ValidatorInfo{Address: addr, Commission: DefaultCommissionPct, EpochStaked: m.currentEpoch}
			m.validators[addr] = v
		}
		v.Stake = v.Stake.Add(p.Amount)
		m.updateValidatorStatusLocked(addr)
		delete(m.pendingStakes, addr)
	}

	remainingDelegations := m.pendingDelegations[:0]
	for _, pd := range m.pendingDelegations {
		if pd.EpochEffective > m.currentEpoch {
			remainingDelegations = append(remainingDelegations, pd)
			continue
		}
		v, ok := m.validators[pd.Validator]
		if !ok || v.Stake < m.minStake {
			m.logger.WithFields(log.Fields{"delegator": pd.Delegator, "validator": pd.Validator}).
				Warn("staking: dropping pending delegation, validator no longer meets minimum stake at activation")
			continue
		}
		byDelegator, ok := m.delegationsByValidator[pd.Validator]
		if !ok {
			byDelegator = make(map[string]*Delegation)
			m.delegationsByValidator[pd.Validator] = byDelegator
		}
		if existing, ok := byDelegator[pd.Delegator]; ok {
			existing.Amount = existing.Amount.Add(pd.Amount)
		} else {
			byDelegator[pd.Delegator] = &Delegation{
				Delegator: pd.Delegator, Validator: pd.Validator, Amount: pd.Amount, EpochDelegated: m.currentEpoch,
			}
		}
		v.DelegatedStake = v.DelegatedStake.Add(pd.Amount)
	}
	m.pendingDelegations = remainingDelegations

	var payouts []Payout
	remainingUnstakes := m.unstakeRequests[:0]
	for _, u := range m.unstakeRequests {
		if u.EpochEffective > m.currentEpoch {
			remainingUnstakes = append(remainingUnstakes, u)
			continue
		}
		payouts = append(payouts, Payout{To: u.Address, Amount: u.Amount, Reason: "unstake-release"})
	}
	m.unstakeRequests = remainingUnstakes

	return payouts
}

// GetStake returns a validator's active self-stake.
func (m *Manager) GetStake(addr string) types.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.validators[addr]; ok {
		return v.Stake
	}
	return 0
}

// GetPendingStake returns the pending (not-yet-activated) stake for addr.
func (m *Manager) GetPendingStake(addr string) types.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.pendingStakes[addr]; ok {
		return p.Amount
	}
	return 0
}

// PendingStakeInfo returns the full pending-stake record, if any.
func (m *Manager) PendingStakeInfo(addr string) (PendingStake, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pendingStakes[addr]
	if !ok {
		return PendingStake{}, false
	}
	return *p, true
}

// GetDelegation returns the active delegated amount from delegator to
// validator.
func (m *Manager) GetDelegation(delegator, validator string) types.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if byDelegator, ok := m.delegationsByValidator[validator]; ok {
		if d, ok := byDelegator[delegator]; ok {
			return d.Amount
		}
	}
	return 0
}

// Validator returns a copy of the named validator's info.
func (m *Manager) Validator(addr string) (ValidatorInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.validators[addr]
	if !ok {
		return ValidatorInfo{}, false
	}
	return *v, true
}

// GetValidators returns every active validator, sorted by address for
// deterministic output.
func (m *Manager) GetValidators() []ValidatorInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ValidatorInfo, 0, len(m.validators))
	for _, v := range m.validators {
		if v.IsActive {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ActiveValidatorWeights returns the (address, stake+delegated) pairs that
// feed the VRF selector, sorted by address.
func (m *Manager) ActiveValidatorWeights() []Weight {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Weight, 0, len(m.validators))
	for _, v := range m.validators {
		if !v.IsActive {
			continue
		}
		out = append(out, Weight{Address: v.Address, Weight: uint64(v.Stake) + uint64(v.DelegatedStake)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ApplySlash reduces a validator's active stake by fraction (0,1] and
// records the slash count. It is called by the slashing package via the
// Slasher interface seam.
func (m *Manager) ApplySlash(addr string, fraction float64) (types.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validators[addr]
	if !ok {
		return 0, fmt.Errorf("applySlash %s: %w", addr, nodeerr.ErrNotAValidator)
	}
	slashed := types.Amount(float64(v.Stake) * fraction)
	if slashed > v.Stake {
		slashed = v.Stake
	}
	v.Stake, _ = v.Stake.Sub(slashed)
	v.SlashCount++
	m.updateValidatorStatusLocked(addr)
	m.logger.WithFields(log.Fields{"validator": addr, "slashed": slashed.String(), "fraction": fraction}).
		Warn("staking: validator slashed")
	return slashed, nil
}

// RecordBlockProduced increments a validator's block-production counter.
func (m *Manager) RecordBlockProduced(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.validators[addr]; ok {
		v.BlocksCreated++
	}
}
