package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/types"
)

const testChainID = "test-chain"

func genesisBlock(t *testing.T, faucet string, amount types.Amount) *Block {
	t.Helper()
	tx := &Transaction{TxType: TxReward, To: faucet, Amount: amount, ChainID: testChainID}
	tx.Finalize()
	b := &Block{Index: 0, Transactions: []*Transaction{tx}}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize genesis: %v", err)
	}
	return b
}

func newTestLedger(t *testing.T, faucet string, faucetAmount types.Amount) *Ledger {
	t.Helper()
	l, err := New(Config{
		ChainID:        testChainID,
		Network:        crypto.Testnet,
		GenesisBlock:   genesisBlock(t, faucet, faucetAmount),
		RewardSchedule: RewardSchedule{InitialReward: types.NewAmount(10), MinReward: types.NewAmount(1), ReductionInterval: 1_000_000},
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func signedTransfer(t *testing.T, priv ed25519.PrivateKey, to string, amount, fee types.Amount, nonce types.Nonce) *Transaction {
	t.Helper()
	tx := &Transaction{TxType: TxTransfer, To: to, Amount: amount, Fee: fee, Nonce: nonce, ChainID: testChainID}
	tx.Sign(crypto.Testnet, priv)
	return tx
}

func TestGenesisBalance(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	faucet := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, faucet, types.NewAmount(1000))
	if got := l.GetBalance(faucet); got != types.NewAmount(1000) {
		t.Fatalf("genesis balance = %s, want 1000", got)
	}
	if l.Height() != 0 {
		t.Fatalf("height = %d, want 0", l.Height())
	}
}

func TestSubmitTxRejectsWrongChain(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	from := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, from, types.NewAmount(1000))

	tx := &Transaction{TxType: TxTransfer, To: "someone", Amount: types.NewAmount(1), ChainID: "wrong-chain", Nonce: 1}
	tx.Sign(crypto.Testnet, priv)
	if err := l.SubmitTx(tx); err == nil {
		t.Fatal("expected chain mismatch error")
	}
}

func TestSubmitTxAdmitsValidTransfer(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	from := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, from, types.NewAmount(1000))

	tx := signedTransfer(t, priv, "recipient", types.NewAmount(100), types.NewAmount(1), 1)
	if err := l.SubmitTx(tx); err != nil {
		t.Fatalf("submitTx: %v", err)
	}
	if !l.Mempool().Has(tx.ID) {
		t.Fatal("tx should be in mempool")
	}
}

func TestSubmitTxAdmitsSecp256k1Wallet(t *testing.T) {
	kp, err := crypto.NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	from := crypto.DeriveAddress(crypto.Testnet, kp.PublicKeyBytes())
	l := newTestLedger(t, from, types.NewAmount(1000))

	tx := &Transaction{TxType: TxTransfer, To: "recipient", Amount: types.NewAmount(100), Fee: types.NewAmount(1), Nonce: 1, ChainID: testChainID}
	tx.SignSecp256k1(crypto.Testnet, kp)
	if err := l.SubmitTx(tx); err != nil {
		t.Fatalf("submitTx: %v", err)
	}

	signFn := func(hash string) []byte { return []byte("sig") }
	if _, err := l.CreatePoSBlock("validator", 1, signFn, nil); err != nil {
		t.Fatalf("createPoSBlock: %v", err)
	}
	if got := l.GetBalance("recipient"); got != types.NewAmount(100) {
		t.Fatalf("recipient balance = %s, want 100", got)
	}
	if got := l.GetNonce(from); got != 1 {
		t.Fatalf("nonce = %d, want 1", got)
	}
}

func TestSubmitTxRejectsInsufficientFunds(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	from := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, from, types.NewAmount(10))

	tx := signedTransfer(t, priv, "recipient", types.NewAmount(100), 0, 1)
	if err := l.SubmitTx(tx); err == nil {
		t.Fatal("expected insufficient funds error")
	}
}

func TestSubmitTxRejectsDuplicateAndBadNonce(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	from := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, from, types.NewAmount(1000))

	tx := signedTransfer(t, priv, "recipient", types.NewAmount(10), 0, 1)
	if err := l.SubmitTx(tx); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := l.SubmitTx(tx); err == nil {
		t.Fatal("expected duplicate tx error")
	}

	badNonce := signedTransfer(t, priv, "recipient", types.NewAmount(10), 0, 5)
	if err := l.SubmitTx(badNonce); err == nil {
		t.Fatal("expected invalid nonce error")
	}
}

func TestCreatePoSBlockAppliesFeesAndRewards(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	from := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, from, types.NewAmount(1000))

	tx := signedTransfer(t, priv, "recipient", types.NewAmount(100), types.NewAmount(2), 1)
	if err := l.SubmitTx(tx); err != nil {
		t.Fatalf("submitTx: %v", err)
	}

	valPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	valPub := valPriv.Public().(ed25519.PublicKey)
	validator := crypto.DeriveAddress(crypto.Testnet, valPub)
	signFn := func(hash string) []byte {
		return ed25519.Sign(valPriv, []byte(testChainID+":1:"+hash))
	}

	payouts := []RewardPayout{{To: validator, Amount: types.NewAmount(5), Reason: "block-reward"}}
	b, err := l.CreatePoSBlock(validator, types.Slot(1), signFn, payouts)
	if err != nil {
		t.Fatalf("createPoSBlock: %v", err)
	}
	if b.Index != 1 {
		t.Fatalf("block index = %d, want 1", b.Index)
	}
	if got := l.GetBalance("recipient"); got != types.NewAmount(100) {
		t.Fatalf("recipient balance = %s, want 100", got)
	}
	// validator should have received both the 2-unit fee and the 5-unit
	// reward payout.
	if got := l.GetBalance(validator); got != types.NewAmount(7) {
		t.Fatalf("validator balance = %s, want 7", got)
	}
}

func TestAcceptBlockDetectsGap(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	faucet := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, faucet, types.NewAmount(1000))

	future := &Block{Index: 5, PreviousHash: "nonexistent"}
	_ = future.Finalize()
	if err := l.AcceptBlock(future); err == nil {
		t.Fatal("expected gap-detected error")
	}
}

func TestReplaceChainRejectsShorterChain(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	faucet := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, faucet, types.NewAmount(1000))

	if err := l.ReplaceChain(l.Chain()); err == nil {
		t.Fatal("expected chain-not-longer error for a same-length candidate")
	}
}

func TestReplaceChainRejectsGenesisMismatch(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	faucet := crypto.DeriveAddress(crypto.Testnet, pub)
	l := newTestLedger(t, faucet, types.NewAmount(1000))

	other := genesisBlock(t, "someone-else", types.NewAmount(1))
	second := &Block{Index: 1, PreviousHash: other.Hash}
	_ = second.Finalize()
	if err := l.ReplaceChain([]*Block{other, second}); err == nil {
		t.Fatal("expected genesis-mismatch error")
	}
}
