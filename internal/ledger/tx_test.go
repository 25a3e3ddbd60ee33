package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/types"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	tx := &Transaction{TxType: TxTransfer, To: "recipient", Amount: types.NewAmount(5), ChainID: "c1", Nonce: 1}
	tx.Sign(crypto.Testnet, priv)

	wantFrom := crypto.DeriveAddress(crypto.Testnet, pub)
	if tx.From != wantFrom {
		t.Fatalf("From = %s, want %s", tx.From, wantFrom)
	}
	if err := tx.Verify(crypto.Testnet); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedAmount(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	tx := &Transaction{TxType: TxTransfer, To: "recipient", Amount: types.NewAmount(5), ChainID: "c1", Nonce: 1}
	tx.Sign(crypto.Testnet, priv)

	tx.Amount = types.NewAmount(500)
	if err := tx.Verify(crypto.Testnet); err == nil {
		t.Fatal("expected verification failure after tampering with amount")
	}
}

func TestSecp256k1SignAndVerifyRoundTrip(t *testing.T) {
	kp, err := crypto.NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	tx := &Transaction{TxType: TxTransfer, To: "recipient", Amount: types.NewAmount(5), ChainID: "c1", Nonce: 1}
	tx.SignSecp256k1(crypto.Testnet, kp)

	wantFrom := crypto.DeriveAddress(crypto.Testnet, kp.PublicKeyBytes())
	if tx.From != wantFrom {
		t.Fatalf("From = %s, want %s", tx.From, wantFrom)
	}
	if err := tx.Verify(crypto.Testnet); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tx.Amount = types.NewAmount(500)
	if err := tx.Verify(crypto.Testnet); err == nil {
		t.Fatal("expected verification failure after tampering with amount")
	}
}

func TestVerifyExemptsSystemTransactions(t *testing.T) {
	tx := &Transaction{TxType: TxReward, To: "recipient", Amount: types.NewAmount(5), ChainID: "c1"}
	tx.Finalize()
	if err := tx.Verify(crypto.Testnet); err != nil {
		t.Fatalf("system transaction should verify trivially: %v", err)
	}
}

func TestShortID(t *testing.T) {
	tx := &Transaction{ID: "abcdefghijklmnopqrstuvwxyz"}
	if got := tx.ShortID(); got != "abcdefghijkl" {
		t.Fatalf("shortID = %s, want first 12 chars", got)
	}
}
