// Package producer implements the single-threaded cooperative slot-timer
// loop that advances the chain one slot at a time, consults the VRF
// selector, and either produces a signed block or records a missed slot.
// Producer depends on its concrete Ledger, Staking, Slashing and VRF
// collaborators directly; it performs no network I/O of its own, since
// broadcasting happens out-of-band via the Ledger's event channel.
package producer

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/slashing"
	"github.com/lvenc/lvenc-node/internal/staking"
	"github.com/lvenc/lvenc-node/internal/types"
	"github.com/lvenc/lvenc-node/internal/vrf"
)

// Selector picks the slot leader from a weighted, address-sorted set; in
// production this is vrf.Select, injected so tests can substitute a fixed
// leader.
type Selector func(previousHash string, slot types.Slot, weights []vrf.Weight) (string, bool)

// Config bundles a Producer's collaborators and tunables.
type Config struct {
	ChainID  string
	Ledger   *ledger.Ledger
	Staking  *staking.Manager
	Slashing *slashing.Manager
	Select   Selector
	Clock    vrf.Clock
	Identity *crypto.NodeIdentity
	Network  crypto.Network
	Logger   *log.Logger
}

// Producer runs the slot production loop.
type Producer struct {
	mu sync.Mutex

	cfg     Config
	logger  *log.Logger
	timer   *time.Timer
	running bool

	lastProcessedSlot types.Slot
	lastProducedSlot  types.Slot
}

// New constructs a Producer. Call Start to begin the slot loop.
func New(cfg Config) *Producer {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Select == nil {
		cfg.Select = vrf.Select
	}
	return &Producer{cfg: cfg, logger: cfg.Logger}
}

// Start arms the one-shot timer for shortly after the next slot
// boundary. Calling Start twice is a no-op.
func (p *Producer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.armLocked()
}

// Stop cancels the pending timer. A stopped producer does not observe or
// miss slots until Start is called again.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *Producer) armLocked() {
	now := time.Now().UnixMilli()
	nextSlot := p.cfg.Clock.SlotAt(now) + 1
	delay := p.cfg.Clock.TimeUntilSlot(nextSlot, now) + 100
	if delay < 0 {
		delay = 0
	}
	p.timer = time.AfterFunc(time.Duration(delay)*time.Millisecond, p.tick)
}

// tick is the single-threaded loop body. It is only ever invoked by the
// timer goroutine, never re-entered: the timer is one-shot and is only
// re-armed at the end of this function.
func (p *Producer) tick() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	now := time.Now().UnixMilli()
	currentSlot := p.cfg.Clock.SlotAt(now)

	p.cfg.Slashing.AdvanceToSlot(currentSlot)

	tip := p.cfg.Ledger.Tip()

	p.mu.Lock()
	lastProduced := p.lastProducedSlot
	p.lastProcessedSlot = currentSlot
	p.mu.Unlock()

	if currentSlot > lastProduced {
		self := p.cfg.Identity.Address(p.cfg.Network)
		weights := toVRFWeights(p.cfg.Staking.ActiveValidatorWeights())
		if len(weights) > 0 {
			leader, ok := p.cfg.Select(tip.Hash, currentSlot, weights)
			if ok {
				p.cfg.Slashing.RecordExpectedValidator(currentSlot, leader)
				if leader == self {
					p.produce(currentSlot, leader, tip)
				}
			}
		} else if p.hasPendingOwnStake(self) {
			// Bootstrap: with zero active validators nobody can be elected,
			// so the node carrying the chain's first qualifying stake
			// produces the block that activates it.
			p.produce(currentSlot, self, tip)
		}
	}

	p.mu.Lock()
	if p.running {
		p.armLocked()
	}
	p.mu.Unlock()
}

func toVRFWeights(w []staking.Weight) []vrf.Weight {
	out := make([]vrf.Weight, len(w))
	for i, v := range w {
		out[i] = vrf.Weight{Address: v.Address, Weight: v.Weight}
	}
	return out
}

// hasPendingOwnStake reports whether our own mempool holds a STAKE
// transaction from this node's address large enough to confer validator
// status once applied.
func (p *Producer) hasPendingOwnStake(self string) bool {
	for _, tx := range p.cfg.Ledger.Mempool().PendingByAddress(self) {
		if tx.TxType == ledger.TxStake && tx.Amount >= p.cfg.Staking.MinStake() {
			return true
		}
	}
	return false
}

// produce builds, slashing-checks, and persists a single block for the
// validator this node represents.
func (p *Producer) produce(slot types.Slot, validator string, tip *ledger.Block) {
	baseReward := p.cfg.Ledger.RewardForBlock(tip.Index + 1)
	var stakingPayouts []staking.Payout
	// The bootstrap block is produced before its own STAKE transaction has
	// registered the validator; it carries no reward payouts.
	if _, registered := p.cfg.Staking.Validator(validator); registered {
		var err error
		stakingPayouts, err = p.cfg.Staking.DistributeRewards(validator, baseReward)
		if err != nil {
			p.logger.WithFields(log.Fields{"validator": validator, "slot": slot, "error": err}).
				Warn("producer: reward distribution failed, producing block with no reward payouts")
			stakingPayouts = nil
		}
	}
	rewardDest := p.cfg.Identity.RewardAddress()
	payouts := make([]ledger.RewardPayout, 0, len(stakingPayouts))
	for _, sp := range stakingPayouts {
		to := sp.To
		if to == validator && rewardDest != "" {
			to = rewardDest
		}
		payouts = append(payouts, ledger.RewardPayout{To: to, Amount: sp.Amount, Reason: sp.Reason})
	}

	signFn := func(blockHash string) []byte {
		return p.cfg.Identity.SignBlock(p.cfg.ChainID, tip.Index+1, blockHash)
	}

	block, err := p.cfg.Ledger.CreatePoSBlock(validator, slot, signFn, payouts)
	if err != nil {
		p.logger.WithFields(log.Fields{"validator": validator, "slot": slot, "error": err}).
			Error("producer: block creation failed")
		return
	}

	// Liveness bookkeeping: a lightweight digest keyed by (hash, validator,
	// slot) distinguishes two divergent blocks for the same slot from a
	// single validator re-observing its own block.
	sig := slashing.BlockDigest(block.Hash, validator, slot)
	if err := p.cfg.Slashing.RecordBlockSigned(slot, validator, sig); err != nil {
		// CreatePoSBlock has already appended the block atomically; a
		// double-sign at this point would mean this node produced twice
		// for the same slot, which lastProducedSlot already guards against
		// in normal operation. Surface it loudly rather than attempting a
		// partial chain rollback.
		p.logger.WithFields(log.Fields{"validator": validator, "slot": slot, "error": err}).
			Error("producer: double-sign detected against our own just-produced block")
		return
	}

	p.cfg.Staking.RecordBlockProduced(validator)
	if err := p.cfg.Ledger.Snapshot(); err != nil {
		p.logger.WithFields(log.Fields{"error": err}).Warn("producer: snapshot after block production failed")
	}

	p.mu.Lock()
	p.lastProducedSlot = slot
	p.mu.Unlock()

	p.logger.WithFields(log.Fields{"validator": validator, "slot": slot, "index": block.Index, "hash": block.Hash}).
		Info("producer: block produced")
}
