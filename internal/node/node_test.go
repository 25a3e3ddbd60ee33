package node

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lvenc/lvenc-node/internal/amm"
	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/types"
)

const testChainID = "lvenc-test-1"
const testGenesisMS = 1_700_000_000_000

func writeGenesis(t *testing.T, dir string, alloc map[string]string) string {
	t.Helper()
	spec := GenesisSpec{ChainID: testChainID, TimestampMS: testGenesisMS, Alloc: alloc}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("encode genesis: %v", err)
	}
	path := filepath.Join(dir, "genesis.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	return path
}

func newKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return priv, crypto.DeriveAddress(crypto.Testnet, pub)
}

func testConfig(genesisFile string, epochDuration uint64) Config {
	return Config{
		ChainID:       testChainID,
		Network:       crypto.Testnet,
		GenesisFile:   genesisFile,
		GenesisTimeMS: testGenesisMS,
		EpochDuration: epochDuration,
		MinStake:      types.NewAmount(100),
		MinDelegation: types.NewAmount(10),
	}
}

func newTestNode(t *testing.T, alloc map[string]string, epochDuration uint64) *Node {
	t.Helper()
	n, err := New(testConfig(writeGenesis(t, t.TempDir(), alloc), epochDuration))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n
}

func dummySign(string) []byte { return []byte("test-signature") }

// produceBlock drains the mempool into a block under a placeholder
// producer. The create path does not run leader/signature validation, so
// tests can drive the state machines without a full identity setup.
func produceBlock(t *testing.T, n *Node, slot types.Slot) *ledger.Block {
	t.Helper()
	b, err := n.Ledger.CreatePoSBlock("test-producer", slot, dummySign, nil)
	if err != nil {
		t.Fatalf("create block at slot %d: %v", slot, err)
	}
	return b
}

func mustSubmit(t *testing.T, n *Node, tx *ledger.Transaction) {
	t.Helper()
	if err := n.Ledger.SubmitTx(tx); err != nil {
		t.Fatalf("submit %s tx: %v", tx.TxType, err)
	}
}

func signedTx(priv ed25519.PrivateKey, txType ledger.TxType, to string, amount types.Amount, nonce types.Nonce, memo string) *ledger.Transaction {
	tx := &ledger.Transaction{TxType: txType, To: to, Amount: amount, Nonce: nonce, ChainID: testChainID, Memo: memo}
	tx.Sign(crypto.Testnet, priv)
	return tx
}

func TestStakeActivatesViaBootstrapRule(t *testing.T) {
	priv, addr := newKey(t)
	n := newTestNode(t, map[string]string{addr: "1000"}, 100)

	mustSubmit(t, n, signedTx(priv, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(100), 1, ""))
	produceBlock(t, n, 1)

	validators := n.Staking.GetValidators()
	if len(validators) != 1 || validators[0].Address != addr {
		t.Fatalf("validators = %+v, want exactly [%s]", validators, addr)
	}
	if got := n.Staking.GetStake(addr); got != types.NewAmount(100) {
		t.Fatalf("stake = %s, want 100", got)
	}
	if got := n.Ledger.GetBalance(addr); got != types.NewAmount(900) {
		t.Fatalf("balance = %s, want 900", got)
	}
	if got := n.Ledger.GetBalance(ledger.ModuleStaking); got != types.NewAmount(100) {
		t.Fatalf("staking module balance = %s, want 100", got)
	}
}

func TestSecondStakeIsEpochDeferred(t *testing.T) {
	privA, addrA := newKey(t)
	privB, addrB := newKey(t)
	n := newTestNode(t, map[string]string{addrA: "1000", addrB: "1000"}, 2)

	mustSubmit(t, n, signedTx(privA, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(100), 1, ""))
	produceBlock(t, n, 1)

	mustSubmit(t, n, signedTx(privB, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(200), 1, ""))
	produceBlock(t, n, 2)

	if got := n.Staking.GetStake(addrB); got != 0 {
		t.Fatalf("B active stake before boundary = %s, want 0", got)
	}
	if got := n.Staking.GetPendingStake(addrB); got != types.NewAmount(200) {
		t.Fatalf("B pending stake = %s, want 200", got)
	}

	produceBlock(t, n, 3)
	produceBlock(t, n, 4) // epoch boundary: pending stakes activate

	if got := n.Staking.GetStake(addrB); got != types.NewAmount(200) {
		t.Fatalf("B active stake after boundary = %s, want 200", got)
	}
	if got := n.Staking.GetPendingStake(addrB); got != 0 {
		t.Fatalf("B pending stake after boundary = %s, want 0", got)
	}
}

func TestUnstakeReleasesFundsAtEpochBoundary(t *testing.T) {
	priv, addr := newKey(t)
	n := newTestNode(t, map[string]string{addr: "1000"}, 2)

	mustSubmit(t, n, signedTx(priv, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(200), 1, ""))
	produceBlock(t, n, 1)

	memo, err := ledger.EncodeMemo(ledger.UnstakeMemo{Amount: "50"})
	if err != nil {
		t.Fatalf("encode memo: %v", err)
	}
	mustSubmit(t, n, signedTx(priv, ledger.TxUnstake, addr, 0, 2, memo))
	produceBlock(t, n, 2)

	if got := n.Staking.GetStake(addr); got != types.NewAmount(150) {
		t.Fatalf("stake after unstake request = %s, want 150", got)
	}
	if got := n.Ledger.GetBalance(addr); got != types.NewAmount(800) {
		t.Fatalf("balance before release = %s, want 800", got)
	}

	produceBlock(t, n, 3)
	produceBlock(t, n, 4) // epoch boundary: request matures

	if got := n.Ledger.GetBalance(addr); got != types.NewAmount(850) {
		t.Fatalf("balance after release = %s, want 850", got)
	}
	if got := n.Ledger.GetBalance(ledger.ModuleStaking); got != types.NewAmount(150) {
		t.Fatalf("staking module balance = %s, want 150", got)
	}
}

func TestDelegateViaTransaction(t *testing.T) {
	privA, addrA := newKey(t)
	privB, addrB := newKey(t)
	n := newTestNode(t, map[string]string{addrA: "1000", addrB: "1000"}, 2)

	mustSubmit(t, n, signedTx(privA, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(100), 1, ""))
	produceBlock(t, n, 1)

	memo, _ := ledger.EncodeMemo(ledger.DelegateMemo{Validator: addrA})
	mustSubmit(t, n, signedTx(privB, ledger.TxDelegate, ledger.ModuleStaking, types.NewAmount(50), 1, memo))
	produceBlock(t, n, 2)

	if got := n.Staking.GetDelegation(addrB, addrA); got != 0 {
		t.Fatalf("delegation active before boundary = %s, want 0 (epoch-deferred)", got)
	}

	produceBlock(t, n, 3)
	produceBlock(t, n, 4) // epoch boundary: pending delegation activates

	if got := n.Staking.GetDelegation(addrB, addrA); got != types.NewAmount(50) {
		t.Fatalf("delegation after boundary = %s, want 50", got)
	}
	v, ok := n.Staking.Validator(addrA)
	if !ok || v.DelegatedStake != types.NewAmount(50) {
		t.Fatalf("validator delegated stake = %+v, want 50", v)
	}
}

func TestPoolLifecycleViaTransactions(t *testing.T) {
	priv, addr := newKey(t)
	n := newTestNode(t, map[string]string{addr: "1000"}, 100)

	addMemo, _ := ledger.EncodeMemo(ledger.PoolAddMemo{AmountB: "400"})
	mustSubmit(t, n, signedTx(priv, ledger.TxPoolAdd, ledger.ModulePool, types.NewAmount(100), 1, addMemo))
	produceBlock(t, n, 1)

	state := n.Pool.Snapshot()
	if state.ReserveA != types.NewAmount(100) || state.ReserveB != types.NewAmount(400) {
		t.Fatalf("reserves = %s / %s, want 100 / 400", state.ReserveA, state.ReserveB)
	}
	if state.LPBal[addr] == 0 {
		t.Fatal("provider should hold LP tokens after the add")
	}
	kBefore := uint64(state.ReserveA) / 1000 * (uint64(state.ReserveB) / 1000)

	swapMemo, _ := ledger.EncodeMemo(ledger.PoolSwapMemo{TokenIn: string(amm.TokenA), MinOut: "30"})
	mustSubmit(t, n, signedTx(priv, ledger.TxPoolSwap, ledger.ModulePool, types.NewAmount(10), 2, swapMemo))
	produceBlock(t, n, 2)

	state = n.Pool.Snapshot()
	if state.ReserveA != types.NewAmount(110) {
		t.Fatalf("reserveA after swap = %s, want 110", state.ReserveA)
	}
	kAfter := uint64(state.ReserveA) / 1000 * (uint64(state.ReserveB) / 1000)
	if kAfter < kBefore {
		t.Fatalf("constant product decreased: %d -> %d", kBefore, kAfter)
	}

	// A swap whose minOut cannot be met must leave the pool untouched and
	// refund the deposit.
	balBefore := n.Ledger.GetBalance(addr)
	failMemo, _ := ledger.EncodeMemo(ledger.PoolSwapMemo{TokenIn: string(amm.TokenA), MinOut: "10000"})
	mustSubmit(t, n, signedTx(priv, ledger.TxPoolSwap, ledger.ModulePool, types.NewAmount(10), 3, failMemo))
	produceBlock(t, n, 3)

	after := n.Pool.Snapshot()
	if after.ReserveB != state.ReserveB {
		t.Fatalf("slippage-failed swap changed reserveB: %s -> %s", state.ReserveB, after.ReserveB)
	}
	if got := n.Ledger.GetBalance(addr); got != balBefore {
		t.Fatalf("slippage-failed swap should refund: balance %s -> %s", balBefore, got)
	}
}

func TestUzsSideSwapPaysOutChainToken(t *testing.T) {
	priv, addr := newKey(t)
	n := newTestNode(t, map[string]string{addr: "1000"}, 100)

	addMemo, _ := ledger.EncodeMemo(ledger.PoolAddMemo{AmountB: "400"})
	mustSubmit(t, n, signedTx(priv, ledger.TxPoolAdd, ledger.ModulePool, types.NewAmount(100), 1, addMemo))
	produceBlock(t, n, 1)
	balBefore := n.Ledger.GetBalance(addr)

	swapMemo, _ := ledger.EncodeMemo(ledger.PoolSwapMemo{TokenIn: string(amm.TokenB), AmountIn: "40", MinOut: "5"})
	mustSubmit(t, n, signedTx(priv, ledger.TxPoolSwap, ledger.ModulePool, 0, 2, swapMemo))
	produceBlock(t, n, 2)

	balAfter := n.Ledger.GetBalance(addr)
	if balAfter <= balBefore {
		t.Fatalf("swap paying in UZS should credit the chain token: %s -> %s", balBefore, balAfter)
	}
	state := n.Pool.Snapshot()
	if state.ReserveB != types.NewAmount(440) {
		t.Fatalf("reserveB after UZS-side swap = %s, want 440", state.ReserveB)
	}
}

func TestDoubleSignOnCompetingBlockSlashesValidator(t *testing.T) {
	priv, addr := newKey(t)
	n := newTestNode(t, map[string]string{addr: "1000"}, 100)

	mustSubmit(t, n, signedTx(priv, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(100), 1, ""))
	produceBlock(t, n, 1)

	// The validator produces block 2 for slot 5 legitimately.
	tip := n.Ledger.Tip()
	signFn := func(hash string) []byte {
		return ed25519.Sign(priv, []byte(fmt.Sprintf("%s:%d:%s", testChainID, tip.Index+1, hash)))
	}
	if _, err := n.Ledger.CreatePoSBlock(addr, 5, signFn, nil); err != nil {
		t.Fatalf("create legitimate block: %v", err)
	}

	// A competing block for the same (slot, validator) with a different
	// hash arrives from the network.
	competing := &ledger.Block{
		Index:        2,
		Timestamp:    types.Timestamp(testGenesisMS + 999),
		PreviousHash: tip.Hash,
		Validator:    addr,
		SlotNumber:   5,
	}
	if err := competing.Finalize(); err != nil {
		t.Fatalf("finalize competing block: %v", err)
	}
	competing.BlockSignature = ed25519.Sign(priv, []byte(fmt.Sprintf("%s:%d:%s", testChainID, competing.Index, competing.Hash)))

	if err := n.Ledger.AcceptBlock(competing); err == nil {
		t.Fatal("competing block should be rejected")
	}

	// Double-sign penalty: half the active stake.
	if got := n.Staking.GetStake(addr); got != types.NewAmount(50) {
		t.Fatalf("stake after double-sign = %s, want 50", got)
	}
	evidence := n.Slashing.Evidence()
	if len(evidence) != 1 || evidence[0].Reason != "double-sign" {
		t.Fatalf("evidence = %+v, want one double-sign entry", evidence)
	}
}

func TestRestartRebuildsStateFromChain(t *testing.T) {
	priv, addr := newKey(t)
	dir := t.TempDir()
	cfg := testConfig(writeGenesis(t, dir, map[string]string{addr: "1000"}), 100)
	cfg.DataDir = filepath.Join(dir, "data")

	n1, err := New(cfg)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	mustSubmit(t, n1, signedTx(priv, ledger.TxStake, ledger.ModuleStaking, types.NewAmount(100), 1, ""))
	produceBlock(t, n1, 1)
	if err := n1.Ledger.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	n2, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen node: %v", err)
	}
	if got := n2.Ledger.Height(); got != 1 {
		t.Fatalf("height after restart = %d, want 1", got)
	}
	if got := n2.Staking.GetStake(addr); got != types.NewAmount(100) {
		t.Fatalf("stake after restart = %s, want 100 (rebuilt by chain replay)", got)
	}
}

func TestGenesisBlockIsDeterministic(t *testing.T) {
	alloc := map[string]string{
		"tLVE_" + "000000000000000000000000000000000000" + "0001": "500",
		"tLVE_" + "000000000000000000000000000000000000" + "0002": "250",
	}
	a, err := (&GenesisSpec{ChainID: testChainID, TimestampMS: testGenesisMS, Alloc: alloc}).Block()
	if err != nil {
		t.Fatalf("genesis a: %v", err)
	}
	b, err := (&GenesisSpec{ChainID: testChainID, TimestampMS: testGenesisMS, Alloc: alloc}).Block()
	if err != nil {
		t.Fatalf("genesis b: %v", err)
	}
	if a.Hash != b.Hash {
		t.Fatalf("genesis hash not deterministic: %s != %s", a.Hash, b.Hash)
	}
	if len(a.Transactions) != 2 {
		t.Fatalf("genesis txs = %d, want 2", len(a.Transactions))
	}
}
