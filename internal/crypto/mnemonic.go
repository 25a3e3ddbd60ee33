package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
)

// NewMnemonic generates a fresh BIP-39 mnemonic of the given entropy size
// (128 or 256 bits, i.e. 12 or 24 words).
func NewMnemonic(entropyBits int) (string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("mnemonic: entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// KeyFromMnemonic derives a deterministic Ed25519 keypair from a BIP-39
// mnemonic and optional passphrase. The first 32 bytes of the 64-byte
// bip39.NewSeed output are used directly as the Ed25519 seed (account/index
// hierarchical derivation is intentionally not modeled here; lvenc-node
// binds one identity per mnemonic, unlike a general-purpose HD wallet).
func KeyFromMnemonic(mnemonic, passphrase string) (ed25519.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("mnemonic: invalid checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
}
