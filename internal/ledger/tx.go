package ledger

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/types"
)

// TxType enumerates the transaction kinds: the plain value transfer, the
// staking and pool mutations, and the coinbase-like reward kind emitted
// by reward distribution.
type TxType string

const (
	TxTransfer   TxType = "TRANSFER"
	TxStake      TxType = "STAKE"
	TxUnstake    TxType = "UNSTAKE"
	TxClaim      TxType = "CLAIM"
	TxDelegate   TxType = "DELEGATE"
	TxUndelegate TxType = "UNDELEGATE"
	TxReward     TxType = "REWARD"
	TxPoolAdd    TxType = "POOL_ADD"
	TxPoolRemove TxType = "POOL_REMOVE"
	TxPoolSwap   TxType = "POOL_SWAP"
)

// Transaction is the canonical transaction envelope. From is
// empty for system-originated transactions (genesis faucet, rewards).
type Transaction struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Amount    types.Amount  `json:"amount"`
	Fee       types.Amount  `json:"fee"`
	Timestamp types.Timestamp `json:"timestamp"`
	Nonce     types.Nonce   `json:"nonce"`
	ChainID   string        `json:"chainId"`
	TxType    TxType        `json:"txType"`
	Signature []byte        `json:"signature,omitempty"`
	PublicKey []byte        `json:"publicKey,omitempty"`

	// Memo carries kind-specific parameters (e.g. the validator address for
	// DELEGATE/UNDELEGATE) as a small opaque string, avoiding a parallel
	// struct-per-kind hierarchy.
	Memo string `json:"memo,omitempty"`
}

// HashID computes the canonical transaction id:
// sha256(chainId‖txType‖from‖to‖amount‖fee‖nonce).
func (tx *Transaction) HashID() string {
	buf := []byte(tx.ChainID)
	buf = append(buf, tx.TxType...)
	buf = append(buf, tx.From...)
	buf = append(buf, tx.To...)
	buf = append(buf, strconv.FormatUint(uint64(tx.Amount), 10)...)
	buf = append(buf, strconv.FormatUint(uint64(tx.Fee), 10)...)
	buf = append(buf, strconv.FormatUint(uint64(tx.Nonce), 10)...)
	return crypto.Sum256Hex(buf)
}

// Finalize recomputes and stores the transaction id. Call after all fields
// except Signature/PublicKey are set.
func (tx *Transaction) Finalize() { tx.ID = tx.HashID() }

// Sign finalizes the transaction id, signs it with an Ed25519 key and
// attaches the public key, setting From to the derived address.
func (tx *Transaction) Sign(net crypto.Network, priv ed25519.PrivateKey) {
	pub := priv.Public().(ed25519.PublicKey)
	tx.From = crypto.DeriveAddress(net, pub)
	tx.Finalize()
	tx.Signature = ed25519.Sign(priv, []byte(tx.ID))
	tx.PublicKey = append([]byte(nil), pub...)
}

// SignSecp256k1 is the secp256k1 wallet variant of Sign: same id and
// address derivation, compressed public key attached so Verify can pick
// the scheme by key length.
func (tx *Transaction) SignSecp256k1(net crypto.Network, key *crypto.Secp256k1KeyPair) {
	pub := key.PublicKeyBytes()
	tx.From = crypto.DeriveAddress(net, pub)
	tx.Finalize()
	tx.Signature = key.Sign([]byte(tx.ID))
	tx.PublicKey = pub
}

// Verify recomputes the id, verifies the signature under the scheme the
// attached public key implies, and verifies that From is derivable from
// PublicKey. System transactions (From == "") are exempt from signature
// verification.
func (tx *Transaction) Verify(net crypto.Network) error {
	if tx.From == "" {
		return nil
	}
	wantID := tx.HashID()
	if tx.ID != wantID {
		return fmt.Errorf("tx %s: id mismatch, recomputed %s", tx.ID, wantID)
	}
	switch len(tx.PublicKey) {
	case ed25519.PublicKeySize:
		if !ed25519.Verify(ed25519.PublicKey(tx.PublicKey), []byte(tx.ID), tx.Signature) {
			return fmt.Errorf("tx %s: signature verification failed", tx.ID)
		}
	case crypto.Secp256k1PubKeyLen:
		if !crypto.VerifySecp256k1(tx.PublicKey, []byte(tx.ID), tx.Signature) {
			return fmt.Errorf("tx %s: signature verification failed", tx.ID)
		}
	default:
		return fmt.Errorf("tx %s: malformed public key", tx.ID)
	}
	wantFrom := crypto.DeriveAddress(net, tx.PublicKey)
	if wantFrom != tx.From {
		return fmt.Errorf("tx %s: from address %s does not match public key (expected %s)", tx.ID, tx.From, wantFrom)
	}
	return nil
}

// ShortID returns a truncated hex id suitable for logging.
func (tx *Transaction) ShortID() string {
	if len(tx.ID) <= 12 {
		return tx.ID
	}
	return tx.ID[:12]
}
