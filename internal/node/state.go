package node

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/amm"
	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/slashing"
	"github.com/lvenc/lvenc-node/internal/staking"
	"github.com/lvenc/lvenc-node/internal/types"
	"github.com/lvenc/lvenc-node/internal/vrf"
)

// coreState binds the staking, slashing and pool state machines into the
// Ledger's block pipeline. It is the one implementation of both
// ledger.LeaderChecker and ledger.StateHook, so every consensus-state
// mutation happens inside the Ledger's exclusive section, atomically with
// the block that caused it. The lock order is always
// ledger -> staking/slashing/pool; none of the managers ever calls back
// into the Ledger.
type coreState struct {
	staking  *staking.Manager
	slashing *slashing.Manager
	pool     *amm.Pool
	logger   *log.Logger
}

// ExpectedLeader resolves the VRF-elected producer for (previousHash, slot)
// from the current active validator weights. An empty result with nil error
// signals chain bootstrap: no validator set exists yet, so the Ledger skips
// the leadership check.
func (c *coreState) ExpectedLeader(previousHash string, slot types.Slot) (string, error) {
	weights := c.staking.ActiveValidatorWeights()
	if len(weights) == 0 {
		return "", nil
	}
	vw := make([]vrf.Weight, len(weights))
	for i, w := range weights {
		vw[i] = vrf.Weight{Address: w.Address, Weight: w.Weight}
	}
	leader, ok := vrf.Select(previousHash, slot, vw)
	if !ok {
		return "", errors.New("leader selection failed over a non-empty validator set")
	}
	return leader, nil
}

// CheckBlock runs the double-sign check against the incoming block's
// (slot, validator) pair. On a conflict the slashing manager has already
// applied the penalty and recorded evidence; the returned error makes the
// Ledger reject the block.
func (c *coreState) CheckBlock(b *ledger.Block) error {
	if b.IsGenesis() {
		return nil
	}
	digest := slashing.BlockDigest(b.Hash, b.Validator, b.SlotNumber)
	if err := c.slashing.RecordBlockSigned(b.SlotNumber, b.Validator, digest); err != nil {
		return err
	}
	return nil
}

// ApplyBlock advances the epoch if this block crosses a boundary, then
// dispatches every transaction into the staking/pool state machines. The
// returned transfers release module-held funds back into circulation
// (unstake maturities, undelegations, pool payouts).
func (c *coreState) ApplyBlock(b *ledger.Block) []ledger.Transfer {
	var out []ledger.Transfer

	if !b.IsGenesis() && c.staking.ShouldTransitionEpoch(b.Index) {
		for _, p := range c.staking.TransitionEpoch(b.Index) {
			out = append(out, ledger.Transfer{From: ledger.ModuleStaking, To: p.To, Amount: p.Amount})
		}
	}

	for _, tx := range b.Transactions {
		out = append(out, c.applyTx(tx)...)
	}

	if !b.IsGenesis() {
		// Liveness bookkeeping for replayed and self-produced blocks; for
		// blocks accepted from peers the digest was already recorded by
		// CheckBlock and re-recording the same value is a no-op.
		digest := slashing.BlockDigest(b.Hash, b.Validator, b.SlotNumber)
		_ = c.slashing.RecordBlockSigned(b.SlotNumber, b.Validator, digest)
	}
	return out
}

// applyTx dispatches one transaction by kind. Failures here are soft and
// deterministic: every node applies the same transaction against the same
// state, so a rejection (below-minimum stake, slippage, unknown validator)
// is identical everywhere. A rejected fund-locking operation refunds the
// deposit the Ledger already moved into the module account, so e.g. a
// slippage-failed swap leaves the payer whole.
func (c *coreState) applyTx(tx *ledger.Transaction) []ledger.Transfer {
	// Kinds that lock funds must have paid them to the right module
	// account; otherwise the state machines would credit stake or pool
	// shares for value that went somewhere else.
	switch tx.TxType {
	case ledger.TxStake, ledger.TxDelegate:
		if tx.To != ledger.ModuleStaking {
			c.warnTx(tx, nodeerr.ErrProtocolViolation)
			return nil
		}
	case ledger.TxPoolAdd, ledger.TxPoolRemove, ledger.TxPoolSwap:
		if tx.To != ledger.ModulePool {
			c.warnTx(tx, nodeerr.ErrProtocolViolation)
			return nil
		}
	}

	switch tx.TxType {
	case ledger.TxStake:
		if err := c.staking.Stake(tx.From, tx.Amount); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModuleStaking, tx)
		}

	case ledger.TxUnstake:
		var memo ledger.UnstakeMemo
		if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
			c.warnTx(tx, err)
			return nil
		}
		amount, err := types.ParseAmount(memo.Amount)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		if err := c.staking.RequestUnstake(tx.From, amount); err != nil {
			c.warnTx(tx, err)
		}

	case ledger.TxClaim:
		// Rewards are distributed automatically with every produced block,
		// so there is no accrued bucket to claim from; CLAIM survives as a
		// status-refresh request for wallet compatibility.
		c.staking.UpdateValidator(tx.From)

	case ledger.TxDelegate:
		var memo ledger.DelegateMemo
		if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModuleStaking, tx)
		}
		if err := c.staking.Delegate(tx.From, memo.Validator, tx.Amount); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModuleStaking, tx)
		}

	case ledger.TxUndelegate:
		var memo ledger.UndelegateMemo
		if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
			c.warnTx(tx, err)
			return nil
		}
		amount, err := types.ParseAmount(memo.Amount)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		payout, err := c.staking.Undelegate(tx.From, memo.Validator, amount)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		return []ledger.Transfer{{From: ledger.ModuleStaking, To: payout.To, Amount: payout.Amount}}

	case ledger.TxPoolAdd:
		var memo ledger.PoolAddMemo
		if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModulePool, tx)
		}
		amountB, err := types.ParseAmount(memo.AmountB)
		if err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModulePool, tx)
		}
		if _, err := c.pool.AddLiquidity(tx.From, tx.Amount, amountB); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModulePool, tx)
		}

	case ledger.TxPoolRemove:
		var memo ledger.PoolRemoveMemo
		if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
			c.warnTx(tx, err)
			return nil
		}
		dA, _, err := c.pool.RemoveLiquidity(tx.From, memo.LP)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		if dA > 0 {
			return []ledger.Transfer{{From: ledger.ModulePool, To: tx.From, Amount: dA}}
		}

	case ledger.TxPoolSwap:
		return c.applySwap(tx)
	}
	return nil
}

func (c *coreState) applySwap(tx *ledger.Transaction) []ledger.Transfer {
	var memo ledger.PoolSwapMemo
	if err := ledger.DecodeMemo(tx.Memo, &memo); err != nil {
		c.warnTx(tx, err)
		return refund(ledger.ModulePool, tx)
	}
	minOut, err := types.ParseAmount(memo.MinOut)
	if err != nil {
		c.warnTx(tx, err)
		return refund(ledger.ModulePool, tx)
	}

	switch amm.Token(memo.TokenIn) {
	case amm.TokenA:
		// The chain-token input travelled with the transaction itself
		// (tx.Amount paid to the pool module); the output is the second
		// asset, accounted inside the pool only.
		if _, err := c.pool.Swap(amm.TokenA, tx.Amount, minOut); err != nil {
			c.warnTx(tx, err)
			return refund(ledger.ModulePool, tx)
		}
	case amm.TokenB:
		amountIn, err := types.ParseAmount(memo.AmountIn)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		amountOut, err := c.pool.Swap(amm.TokenB, amountIn, minOut)
		if err != nil {
			c.warnTx(tx, err)
			return nil
		}
		return []ledger.Transfer{{From: ledger.ModulePool, To: tx.From, Amount: amountOut}}
	default:
		c.warnTx(tx, nodeerr.ErrPoolNotFound)
		return refund(ledger.ModulePool, tx)
	}
	return nil
}

// refund returns the deposit of a failed fund-locking transaction from the
// module account back to its sender.
func refund(module string, tx *ledger.Transaction) []ledger.Transfer {
	if tx.Amount == 0 {
		return nil
	}
	return []ledger.Transfer{{From: module, To: tx.From, Amount: tx.Amount}}
}

func (c *coreState) warnTx(tx *ledger.Transaction, err error) {
	c.logger.WithFields(log.Fields{"tx": tx.ShortID(), "type": tx.TxType, "from": tx.From, "error": err}).
		Warn("node: transaction had no state effect")
}

// Reset clears every hook-owned state machine ahead of a chain replay.
func (c *coreState) Reset() {
	c.staking.Reset()
	c.slashing.Reset()
	c.pool.Reset()
}
