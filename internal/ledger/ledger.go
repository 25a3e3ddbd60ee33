// Package ledger maintains the chain, the mempool, and the
// balance/nonce projections, plus block creation, acceptance and
// longest-chain replacement.
package ledger

import (
	"bufio"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

// MaxTxPerBlock bounds how many mempool transactions a single block may
// include.
const MaxTxPerBlock = 500

// LeaderChecker resolves the VRF-elected leader for a (previousHash, slot)
// pair. It is satisfied by the combination of the staking validator set and
// the vrf package's Select function; the concrete wiring lives in the node
// package so that Ledger stays independent of Staking/VRF.
type LeaderChecker interface {
	// ExpectedLeader returns "" with a nil error when no validator set
	// exists yet (chain bootstrap); the Ledger then skips the leadership
	// check for that block.
	ExpectedLeader(previousHash string, slot types.Slot) (validator string, err error)
}

// Transfer is a balance movement requested by the StateHook during block
// application: released unstake funds, undelegated amounts, pool payouts.
// From names the module account being debited.
type Transfer struct {
	From   string
	To     string
	Amount types.Amount
}

// StateHook receives every block as it is validated and applied, so the
// staking, slashing and pool state machines mutate atomically with the
// chain under the Ledger's own exclusive section. The node
// package supplies the one implementation; a nil hook leaves the Ledger
// fully standalone (tests, tooling).
type StateHook interface {
	// CheckBlock runs consensus-state validation the Ledger cannot do
	// alone (double-sign detection); a non-nil error rejects the block.
	CheckBlock(b *Block) error
	// ApplyBlock dispatches the block's transactions into staking/pool
	// state and returns the balance transfers they released.
	ApplyBlock(b *Block) []Transfer
	// Reset clears all hook-owned state ahead of a full chain replay
	// (startup load, ReplaceChain).
	Reset()
}

// Config bundles everything needed to construct a Ledger.
type Config struct {
	ChainID        string
	Network        crypto.Network
	DataDir        string
	GenesisBlock   *Block
	MaxMempool     int
	Leader         LeaderChecker
	Hook           StateHook
	RewardSchedule RewardSchedule
	Logger         *log.Logger

	// RewardAddress, when set, receives the fees of self-produced blocks in
	// place of the validator address.
	// CreatePoSBlock only ever runs for this node's own identity, so a
	// single configured destination is sufficient.
	RewardAddress string
}

// Ledger owns the chain, the mempool, and derived balance/nonce state. A
// single exclusive lock (mu) guards every mutation; reads use RLock.
type Ledger struct {
	mu sync.RWMutex

	chainID    string
	net        crypto.Network
	leader     LeaderChecker
	hook       StateHook
	reward     RewardSchedule
	rewardAddr string
	logger     *log.Logger

	blocks      []*Block
	hashToIndex map[string]int

	balances map[string]types.Amount
	nonces   map[string]types.Nonce

	// keybook maps an address to the public key that produced it, learned
	// the first time a signed transaction or block signature from that
	// address is verified. Needed because Block carries only the
	// validator's address, not its public key.
	keybook map[string]ed25519.PublicKey

	mempool *Mempool
	events  *Events

	dataDir  string
	walFile  *os.File
	walPath  string
	snapPath string
}

// New constructs a Ledger, replaying any existing write-ahead log on top of
// the genesis block.
func New(cfg Config) (*Ledger, error) {
	if cfg.GenesisBlock == nil {
		return nil, errors.New("ledger: genesis block is required")
	}
	if cfg.MaxMempool == 0 {
		cfg.MaxMempool = MaxTxPerBlock * 20
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	l := &Ledger{
		chainID:     cfg.ChainID,
		net:         cfg.Network,
		leader:      cfg.Leader,
		hook:        cfg.Hook,
		reward:      cfg.RewardSchedule,
		rewardAddr:  cfg.RewardAddress,
		logger:      cfg.Logger,
		hashToIndex: make(map[string]int),
		balances:    make(map[string]types.Amount),
		nonces:      make(map[string]types.Nonce),
		keybook:     make(map[string]ed25519.PublicKey),
		mempool:     NewMempool(cfg.MaxMempool),
		events:      newEvents(),
		dataDir:     cfg.DataDir,
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create data dir: %w", err)
		}
		l.walPath = filepath.Join(cfg.DataDir, "chain.wal")
		l.snapPath = filepath.Join(cfg.DataDir, "chain.snapshot.json")
	}

	if err := l.loadFromDisk(cfg.GenesisBlock); err != nil {
		return nil, err
	}
	return l, nil
}

// Events returns the channel-based subscription point for the P2P layer.
func (l *Ledger) Events() *Events { return l.events }

// ChainID returns the configured chain id.
func (l *Ledger) ChainID() string { return l.chainID }

// Tip returns the current chain tip.
func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// Height returns the tip's index.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Index
}

// Chain returns a shallow copy of the block slice.
func (l *Ledger) Chain() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// BlockAt returns the block at the given index, if present.
func (l *Ledger) BlockAt(index uint64) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.blocks)) {
		return nil, false
	}
	return l.blocks[index], true
}

// BlockByHash looks up a block by its hash.
func (l *Ledger) BlockByHash(hash string) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.hashToIndex[hash]
	if !ok {
		return nil, false
	}
	return l.blocks[idx], true
}

// GetBalance returns addr's balance derived from applied blocks only
// (excludes mempool).
func (l *Ledger) GetBalance(addr string) types.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// GetProjectedBalance applies the pending mempool transactions sent by or
// paying addr to its applied balance: incoming amounts are added, outgoing
// amounts and fees subtracted.
func (l *Ledger) GetProjectedBalance(addr string) types.Amount {
	l.mu.RLock()
	bal := l.balances[addr]
	l.mu.RUnlock()
	debit, credit := l.mempool.ProjectedDelta(addr)
	bal = bal.Add(credit)
	out, err := bal.Sub(debit)
	if err != nil {
		return 0
	}
	return out
}

// GetNonce returns the last applied nonce for addr.
func (l *Ledger) GetNonce(addr string) types.Nonce {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[addr]
}

// Mempool exposes the mempool for read-only inspection (fee estimation,
// CLI/administrative tooling).
func (l *Ledger) Mempool() *Mempool { return l.mempool }

// SubmitTx validates and admits a transaction to the mempool.
func (l *Ledger) SubmitTx(tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitTxLocked(tx)
}

func (l *Ledger) submitTxLocked(tx *Transaction) error {
	if tx.ChainID != l.chainID {
		return fmt.Errorf("submitTx %s: %w", tx.ShortID(), nodeerr.ErrInvalidChain)
	}
	if l.mempool.Has(tx.ID) {
		return fmt.Errorf("submitTx %s: %w", tx.ShortID(), nodeerr.ErrDuplicateTx)
	}
	if l.mempool.Full() {
		return fmt.Errorf("submitTx %s: %w", tx.ShortID(), nodeerr.ErrMempoolFull)
	}
	if tx.From == "" {
		return fmt.Errorf("submitTx %s: system transactions cannot be submitted", tx.ShortID())
	}
	if err := tx.Verify(l.net); err != nil {
		return fmt.Errorf("submitTx %s: %w: %v", tx.ShortID(), nodeerr.ErrInvalidSignature, err)
	}
	l.learnKey(tx.From, tx.PublicKey)

	pendingCount := types.Nonce(len(l.mempool.PendingByAddress(tx.From)))
	wantNonce := l.nonces[tx.From] + pendingCount + 1
	if tx.Nonce != wantNonce {
		return fmt.Errorf("submitTx %s: %w: have %d want %d", tx.ShortID(), nodeerr.ErrInvalidNonce, tx.Nonce, wantNonce)
	}

	projected := l.balances[tx.From]
	debit, credit := l.mempool.ProjectedDelta(tx.From)
	projected = projected.Add(credit)
	projected, err := projected.Sub(debit)
	if err != nil {
		projected = 0
	}
	need := tx.Amount.Add(tx.Fee)
	if projected < need {
		return fmt.Errorf("submitTx %s: %w", tx.ShortID(), nodeerr.ErrInsufficientFunds)
	}

	l.mempool.Add(tx)
	l.events.publishTx(tx)
	return nil
}

func (l *Ledger) learnKey(addr string, pub []byte) {
	// Only ed25519 keys are book-kept: the book exists to verify block
	// signatures, and validator identities are always ed25519. secp256k1
	// wallet keys travel with each transaction instead.
	if len(pub) != ed25519.PublicKeySize {
		return
	}
	if _, ok := l.keybook[addr]; !ok {
		l.keybook[addr] = append(ed25519.PublicKey(nil), pub...)
	}
}

// SignFunc produces a validator's block signature over a block hash, e.g.
// NodeIdentity.SignBlock bound to the producer's own identity.
type SignFunc func(blockHash string) []byte

// RewardPayout is a single credit owed as part of block reward
// distribution. Ledger stays independent of the staking package, so the
// producer converts staking.Payout into this shape before calling
// CreatePoSBlock.
type RewardPayout struct {
	To     string
	Amount types.Amount
	Reason string
}

// RewardForBlock exposes the configured reward schedule so the producer can
// compute the base issuance for the block it is about to build, before
// calling staking's commission/delegation split.
func (l *Ledger) RewardForBlock(index uint64) types.Amount {
	return l.reward.RewardForBlock(index)
}

// CreatePoSBlock drains up to MaxTxPerBlock highest-fee mempool
// transactions, builds and signs a new block atop the tip, and applies it.
// Transaction fees collected in the block are credited entirely to the
// configured RewardAddress, or to the producing validator when none is set;
// rewardPayouts (the already-split validator/delegator
// shares of the base block reward, computed by the caller via
// staking.DistributeRewards) are embedded as additional system credit
// transactions in the same block, rather than deferred to a later one: since
// system transactions bypass mempool admission entirely, the extra
// indirection of parking them in the mempool first buys no additional
// safety.
func (l *Ledger) CreatePoSBlock(validator string, slot types.Slot, signFn SignFunc, rewardPayouts []RewardPayout) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.blocks[len(l.blocks)-1]
	candidates := l.mempool.DrainTopFee(MaxTxPerBlock)

	var accepted []*Transaction
	var returned []*Transaction
	simBalances := make(map[string]types.Amount)
	simNonces := make(map[string]types.Nonce)
	for _, tx := range candidates {
		bal, ok := simBalances[tx.From]
		if !ok {
			bal = l.balances[tx.From]
		}
		nonce, ok := simNonces[tx.From]
		if !ok {
			nonce = l.nonces[tx.From]
		}
		if tx.Nonce != nonce+1 {
			returned = append(returned, tx)
			continue
		}
		need := tx.Amount.Add(tx.Fee)
		if bal < need {
			returned = append(returned, tx)
			continue
		}
		bal, _ = bal.Sub(need)
		simBalances[tx.From] = bal
		simNonces[tx.From] = nonce + 1
		accepted = append(accepted, tx)
	}
	for _, tx := range returned {
		l.mempool.Add(tx)
	}

	block := &Block{
		Index:        tip.Index + 1,
		Timestamp:    types.Timestamp(time.Now().UnixMilli()),
		Transactions: accepted,
		PreviousHash: tip.Hash,
		Validator:    validator,
		SlotNumber:   slot,
	}
	if err := block.Finalize(); err != nil {
		return nil, err
	}
	block.BlockSignature = signFn(block.Hash)

	var totalFees types.Amount
	for _, tx := range accepted {
		totalFees = totalFees.Add(tx.Fee)
	}
	// System credit transactions share (chainId, type, from="", timestamp
	// excluded) in their hash input, so two payouts to the same address for
	// the same amount would otherwise collide; Nonce (unused for system
	// transactions otherwise) is repurposed as a per-block sequence number
	// to keep every credit's id unique.
	feeDest := validator
	if l.rewardAddr != "" {
		feeDest = l.rewardAddr
	}
	var seq types.Nonce
	if totalFees > 0 {
		seq++
		feeTx := &Transaction{TxType: TxReward, To: feeDest, Amount: totalFees, Nonce: seq, ChainID: l.chainID, Timestamp: block.Timestamp, Memo: "fees"}
		feeTx.Finalize()
		block.Transactions = append(block.Transactions, feeTx)
	}
	for _, rp := range rewardPayouts {
		if rp.Amount == 0 {
			continue
		}
		seq++
		rewardTx := &Transaction{TxType: TxReward, To: rp.To, Amount: rp.Amount, Nonce: seq, ChainID: l.chainID, Timestamp: block.Timestamp, Memo: rp.Reason}
		rewardTx.Finalize()
		block.Transactions = append(block.Transactions, rewardTx)
	}
	if err := block.Finalize(); err != nil {
		return nil, err
	}
	// Re-sign after appending the reward transaction so the signature
	// covers the final header (the reward tx id depends on the block's
	// contents only through chain/type/recipient/amount, not the hash, so
	// a single re-finalize+re-sign pass is sufficient and terminates).
	block.BlockSignature = signFn(block.Hash)

	if err := l.applyBlockLocked(block, true); err != nil {
		return nil, err
	}
	return block, nil
}

// AcceptBlock validates an incoming block end-to-end and appends it to the
// chain. Blocks beyond tip+1 return ErrGapDetected so the
// caller can request a sync.
func (l *Ledger) AcceptBlock(b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acceptBlockLocked(b)
}

func (l *Ledger) acceptBlockLocked(b *Block) error {
	tip := l.blocks[len(l.blocks)-1]
	if b.Index > tip.Index+1 {
		return fmt.Errorf("acceptBlock %d: %w", b.Index, nodeerr.ErrGapDetected)
	}
	if b.Index <= tip.Index {
		// A stale block is normally just a duplicate broadcast, but a
		// divergent one signed by its validator is double-sign evidence;
		// hand it to the hook before discarding.
		l.inspectStaleBlockLocked(b)
		return fmt.Errorf("acceptBlock %d: already have a block at or past this height", b.Index)
	}
	if err := l.validateBlockLocked(b, tip); err != nil {
		return err
	}
	return l.applyBlockLocked(b, true)
}

// inspectStaleBlockLocked runs the double-sign check over a block at or
// below the current tip. The hash and validator signature are verified
// first so fabricated blocks cannot slash an innocent validator.
func (l *Ledger) inspectStaleBlockLocked(b *Block) {
	if l.hook == nil || b.Index == 0 {
		return
	}
	wantHash, err := b.ComputeHash()
	if err != nil || b.Hash != wantHash {
		return
	}
	pub, ok := l.keybook[b.Validator]
	if !ok || !crypto.VerifyBlockSignature(pub, l.chainID, b.Index, b.Hash, b.BlockSignature) {
		return
	}
	if err := l.hook.CheckBlock(b); err != nil {
		l.logger.WithError(err).Warn("ledger: stale block carried double-sign evidence")
	}
}

func (l *Ledger) validateBlockLocked(b *Block, prev *Block) error {
	if b.PreviousHash != prev.Hash {
		return fmt.Errorf("acceptBlock %d: previousHash mismatch", b.Index)
	}
	wantHash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	if b.Hash != wantHash {
		return fmt.Errorf("acceptBlock %d: hash mismatch", b.Index)
	}
	if l.leader != nil {
		expected, err := l.leader.ExpectedLeader(prev.Hash, b.SlotNumber)
		if err != nil {
			return fmt.Errorf("acceptBlock %d: resolving expected leader: %w", b.Index, err)
		}
		// An empty expected leader means the validator set is still empty
		// (bootstrap): the first staking block cannot be leader-checked
		// against a set its own transactions create.
		if expected != "" && expected != b.Validator {
			return fmt.Errorf("acceptBlock %d: validator %s does not match VRF-elected leader %s", b.Index, b.Validator, expected)
		}
	}
	pub, ok := l.keybook[b.Validator]
	if !ok {
		return fmt.Errorf("acceptBlock %d: unknown public key for validator %s", b.Index, b.Validator)
	}
	if !crypto.VerifyBlockSignature(pub, l.chainID, b.Index, b.Hash, b.BlockSignature) {
		return fmt.Errorf("acceptBlock %d: %w", b.Index, nodeerr.ErrInvalidSignature)
	}

	seen := make(map[string]bool, len(b.Transactions))
	simBalances := make(map[string]types.Amount)
	simNonces := make(map[string]types.Nonce)
	for _, tx := range b.Transactions {
		if seen[tx.ID] {
			return fmt.Errorf("acceptBlock %d: duplicate tx %s within block", b.Index, tx.ShortID())
		}
		seen[tx.ID] = true
		if tx.TxType == TxReward {
			continue // coinbase-like, not signed, not balance-checked against a sender
		}
		if err := tx.Verify(l.net); err != nil {
			return fmt.Errorf("acceptBlock %d: tx %s: %w", b.Index, tx.ShortID(), err)
		}
		l.learnKey(tx.From, tx.PublicKey)
		bal, ok := simBalances[tx.From]
		if !ok {
			bal = l.balances[tx.From]
		}
		nonce, ok := simNonces[tx.From]
		if !ok {
			nonce = l.nonces[tx.From]
		}
		if tx.Nonce != nonce+1 {
			return fmt.Errorf("acceptBlock %d: tx %s: %w", b.Index, tx.ShortID(), nodeerr.ErrInvalidNonce)
		}
		need := tx.Amount.Add(tx.Fee)
		if bal < need {
			return fmt.Errorf("acceptBlock %d: tx %s: %w", b.Index, tx.ShortID(), nodeerr.ErrInsufficientFunds)
		}
		bal, _ = bal.Sub(need)
		simBalances[tx.From] = bal
		simNonces[tx.From] = nonce + 1
	}
	// Last, after everything cheaper has passed: the double-sign check
	// mutates slashing state (recording this block's signature), so it must
	// not run for blocks that a structural check would reject anyway.
	if l.hook != nil {
		if err := l.hook.CheckBlock(b); err != nil {
			return fmt.Errorf("acceptBlock %d: %w", b.Index, err)
		}
	}
	return nil
}

// applyBlockLocked appends b to the chain, updates balance/nonce
// projections, evicts its transactions from the mempool, persists to the
// WAL, and publishes onBlockMined. Callers must hold l.mu.
func (l *Ledger) applyBlockLocked(b *Block, persist bool) error {
	for _, tx := range b.Transactions {
		if tx.From != "" {
			l.balances[tx.From], _ = l.balances[tx.From].Sub(tx.Amount.Add(tx.Fee))
			l.nonces[tx.From] = tx.Nonce
			// Keep the keybook current during chain replay too, where the
			// validate path (the usual learning point) is skipped.
			l.learnKey(tx.From, tx.PublicKey)
		}
		l.balances[tx.To] = l.balances[tx.To].Add(tx.Amount)
		l.mempool.Remove(tx.ID)
	}
	if l.hook != nil {
		for _, tr := range l.hook.ApplyBlock(b) {
			if tr.From != "" {
				l.balances[tr.From], _ = l.balances[tr.From].Sub(tr.Amount)
			}
			l.balances[tr.To] = l.balances[tr.To].Add(tr.Amount)
		}
	}
	l.blocks = append(l.blocks, b)
	l.hashToIndex[b.Hash] = len(l.blocks) - 1

	if persist {
		if err := l.appendWAL(b); err != nil {
			return err
		}
	}
	l.events.publishBlock(b)
	return nil
}

// ReplaceChain swaps in a longer, fully valid candidate chain whose genesis
// matches the local genesis.
func (l *Ledger) ReplaceChain(candidate []*Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(candidate) <= len(l.blocks) {
		return fmt.Errorf("replaceChain: %w", nodeerr.ErrChainNotLonger)
	}
	if candidate[0].Hash != l.blocks[0].Hash {
		return fmt.Errorf("replaceChain: %w", nodeerr.ErrGenesisMismatch)
	}

	saved := l.snapshotState()
	l.resetState(candidate[0])
	for i := 1; i < len(candidate); i++ {
		if err := l.validateBlockLocked(candidate[i], candidate[i-1]); err != nil {
			l.restoreState(saved)
			return fmt.Errorf("replaceChain: %w: %v", nodeerr.ErrChainInvalid, err)
		}
		if err := l.applyBlockLocked(candidate[i], false); err != nil {
			l.restoreState(saved)
			return err
		}
	}
	if err := l.rewriteWAL(); err != nil {
		return err
	}
	return nil
}

type savedState struct {
	blocks      []*Block
	hashToIndex map[string]int
	balances    map[string]types.Amount
	nonces      map[string]types.Nonce
}

func (l *Ledger) snapshotState() savedState {
	return savedState{blocks: l.blocks, hashToIndex: l.hashToIndex, balances: l.balances, nonces: l.nonces}
}

func (l *Ledger) restoreState(s savedState) {
	l.blocks, l.hashToIndex, l.balances, l.nonces = s.blocks, s.hashToIndex, s.balances, s.nonces
	// The hook's state machines were advanced by the partially applied
	// candidate chain; rebuild them from the restored chain. The transfers
	// returned here are discarded: the restored balance map already
	// reflects them.
	if l.hook != nil {
		l.hook.Reset()
		for _, b := range l.blocks[1:] {
			l.hook.ApplyBlock(b)
		}
	}
}

func (l *Ledger) resetState(genesis *Block) {
	l.blocks = []*Block{genesis}
	l.hashToIndex = map[string]int{genesis.Hash: 0}
	l.balances = make(map[string]types.Amount)
	l.nonces = make(map[string]types.Nonce)
	for _, tx := range genesis.Transactions {
		l.balances[tx.To] = l.balances[tx.To].Add(tx.Amount)
	}
	if l.hook != nil {
		l.hook.Reset()
	}
}

// --- persistence -----------------------------------------------------

func (l *Ledger) loadFromDisk(genesis *Block) error {
	if l.walPath == "" {
		l.resetState(genesis)
		return nil
	}
	if raw, err := os.ReadFile(l.snapPath); err == nil {
		var blocks []*Block
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return fmt.Errorf("ledger: %w: snapshot decode: %v", nodeerr.ErrCorruptState, err)
		}
		if len(blocks) == 0 {
			return fmt.Errorf("ledger: %w: empty snapshot", nodeerr.ErrCorruptState)
		}
		l.resetState(blocks[0])
		for i := 1; i < len(blocks); i++ {
			if err := l.applyBlockLocked(blocks[i], false); err != nil {
				return fmt.Errorf("ledger: %w: replaying snapshot: %v", nodeerr.ErrCorruptState, err)
			}
		}
	} else if os.IsNotExist(err) {
		l.resetState(genesis)
	} else {
		return fmt.Errorf("ledger: read snapshot: %w", err)
	}

	wal, err := os.OpenFile(l.walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("ledger: open WAL: %w", err)
	}
	scanner := bufio.NewScanner(wal)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var b Block
		if err := json.Unmarshal(scanner.Bytes(), &b); err != nil {
			_ = wal.Close()
			return fmt.Errorf("ledger: %w: WAL decode: %v", nodeerr.ErrCorruptState, err)
		}
		if b.Index <= l.blocks[len(l.blocks)-1].Index {
			continue // already covered by the snapshot
		}
		if err := l.applyBlockLocked(&b, false); err != nil {
			_ = wal.Close()
			return fmt.Errorf("ledger: %w: WAL replay: %v", nodeerr.ErrCorruptState, err)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = wal.Close()
		return fmt.Errorf("ledger: scan WAL: %w", err)
	}
	l.walFile = wal
	return nil
}

func (l *Ledger) appendWAL(b *Block) error {
	if l.walFile == nil {
		return nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("ledger: encode block for WAL: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := l.walFile.Write(raw); err != nil {
		return fmt.Errorf("ledger: write WAL: %w", err)
	}
	return nil
}

// rewriteWAL truncates and rewrites the WAL from the current in-memory
// chain. Called after a successful ReplaceChain, where the new tip may
// diverge from what's on disk at any point after genesis.
func (l *Ledger) rewriteWAL() error {
	if l.walFile == nil {
		return nil
	}
	if err := l.walFile.Truncate(0); err != nil {
		return fmt.Errorf("ledger: truncate WAL: %w", err)
	}
	if _, err := l.walFile.Seek(0, 0); err != nil {
		return fmt.Errorf("ledger: seek WAL: %w", err)
	}
	w := bufio.NewWriter(l.walFile)
	for _, b := range l.blocks[1:] {
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("ledger: encode block for WAL: %w", err)
		}
		if _, err := w.Write(append(raw, '\n')); err != nil {
			return fmt.Errorf("ledger: write WAL: %w", err)
		}
	}
	return w.Flush()
}

// Snapshot writes the full chain to the snapshot file; on the next load,
// WAL entries the snapshot already covers are skipped.
func (l *Ledger) Snapshot() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snapPath == "" {
		return nil
	}
	raw, err := json.Marshal(l.blocks)
	if err != nil {
		return fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	tmp := l.snapPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("ledger: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, l.snapPath); err != nil {
		return fmt.Errorf("ledger: rename snapshot: %w", err)
	}
	return nil
}

// Close flushes a final snapshot and closes the WAL file descriptor.
func (l *Ledger) Close() error {
	if err := l.Snapshot(); err != nil {
		l.logger.WithError(err).Warn("ledger: snapshot on close failed")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.walFile == nil {
		return nil
	}
	return l.walFile.Close()
}
