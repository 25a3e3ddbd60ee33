package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Secp256k1PubKeyLen is the compressed SEC1 public key length. Transaction
// verification uses it to tell a secp256k1 wallet key (33 bytes) apart
// from an Ed25519 one (32 bytes).
const Secp256k1PubKeyLen = 33

// Secp256k1KeyPair is the alternate wallet signing scheme offered
// alongside Ed25519. Wallets may choose either; the node's own validator
// identity is always Ed25519 (NodeIdentity).
type Secp256k1KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// NewSecp256k1KeyPair generates a fresh secp256k1 keypair.
func NewSecp256k1KeyPair() (*Secp256k1KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Secp256k1KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// PublicKeyBytes returns the compressed SEC1 public key encoding.
func (k *Secp256k1KeyPair) PublicKeyBytes() []byte { return k.pub.SerializeCompressed() }

// Sign produces a deterministic ECDSA signature (RFC6979) over sha256(msg).
func (k *Secp256k1KeyPair) Sign(msg []byte) []byte {
	h := sha256.Sum256(msg)
	sig := ecdsa.Sign(k.priv, h[:])
	return sig.Serialize()
}

// VerifySecp256k1 verifies a DER-encoded ECDSA signature over sha256(msg)
// against a compressed public key.
func VerifySecp256k1(pubBytes, msg, sig []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	h := sha256.Sum256(msg)
	return parsed.Verify(h[:], pub)
}
