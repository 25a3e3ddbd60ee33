package crypto

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

const identityFileName = "identity.key"
const identityFileVersion = 1

// identityFile is the on-disk JSON shape of an identity.key file.
type identityFile struct {
	Version       int     `json:"version"`
	Algo          string  `json:"algo"`
	NodeID        string  `json:"nodeId"`
	PrivateKey    string  `json:"privateKey"`
	RewardAddress *string `json:"rewardAddress"`
	CreatedAt     int64   `json:"createdAt"`
}

// NodeIdentity holds the node's signing keypair and reward-address binding.
// The private key never leaves the process except to be persisted, under
// owner-only permissions, to its identity file.
type NodeIdentity struct {
	priv          ed25519.PrivateKey
	pub           ed25519.PublicKey
	rewardAddress *string
	createdAt     time.Time
	path          string
}

// PublicKey returns the raw Ed25519 public key.
func (n *NodeIdentity) PublicKey() ed25519.PublicKey { return n.pub }

// Address returns this identity's network address (the validator identity
// used by the block producer and VRF selector).
func (n *NodeIdentity) Address(net Network) string { return DeriveAddress(net, n.pub) }

// RewardAddress returns the bound reward destination, or "" if unbound.
func (n *NodeIdentity) RewardAddress() string {
	if n.rewardAddress == nil {
		return ""
	}
	return *n.rewardAddress
}

// BindRewardAddress sets the reward destination and persists the identity
// file in place.
func (n *NodeIdentity) BindRewardAddress(addr string) error {
	n.rewardAddress = &addr
	return n.save()
}

// Load reads an existing identity file from dir. A missing file is reported
// as os.ErrNotExist so callers (e.g. read-only tooling) can treat it as
// non-fatal; a corrupt file returns a wrapped error that callers must
// treat as fatal.
func Load(dir string) (*NodeIdentity, error) {
	path := filepath.Join(dir, identityFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f identityFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("identity: corrupt file %s: %w", path, err)
	}
	if f.Algo != "ed25519" {
		return nil, fmt.Errorf("identity: unsupported algo %q", f.Algo)
	}
	privRaw, err := hex.DecodeString(f.PrivateKey)
	if err != nil || len(privRaw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: corrupt private key in %s", path)
	}
	priv := ed25519.PrivateKey(privRaw)
	pub := priv.Public().(ed25519.PublicKey)
	return &NodeIdentity{
		priv:          priv,
		pub:           pub,
		rewardAddress: f.RewardAddress,
		createdAt:     time.UnixMilli(f.CreatedAt),
		path:          path,
	}, nil
}

// Create generates a fresh Ed25519 identity, persists it to dir/identity.key
// with 0600 permissions, and emits a one-time warning reminding the operator
// to bind a reward address.
func Create(dir string, logger *log.Logger) (*NodeIdentity, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("identity: create dir: %w", err)
	}
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: keygen: %w", err)
	}
	n := &NodeIdentity{
		priv:      priv,
		pub:       pub,
		createdAt: time.Now(),
		path:      filepath.Join(dir, identityFileName),
	}
	if err := n.save(); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Warn("identity: generated a new validator identity with no bound reward address; " +
			"block rewards will accrue to the validator address itself until `reward bind <address>` is run")
	}
	return n, nil
}

// LoadOrCreate loads an existing identity or creates one if none exists.
func LoadOrCreate(dir string, logger *log.Logger) (*NodeIdentity, error) {
	id, err := Load(dir)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Create(dir, logger)
	}
	return nil, err
}

func (n *NodeIdentity) save() error {
	f := identityFile{
		Version:       identityFileVersion,
		Algo:          "ed25519",
		NodeID:        hex.EncodeToString(n.pub),
		PrivateKey:    hex.EncodeToString(n.priv),
		RewardAddress: n.rewardAddress,
		CreatedAt:     n.createdAt.UnixMilli(),
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}
	if err := os.WriteFile(n.path, raw, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", n.path, err)
	}
	return nil
}

// SignBlock signs a block hash with domain separation over
// "chainId:index:blockHash".
func (n *NodeIdentity) SignBlock(chainID string, index uint64, blockHash string) []byte {
	msg := blockSigningMessage(chainID, index, blockHash)
	return ed25519.Sign(n.priv, msg)
}

// VerifyBlockSignature verifies a block signature against the domain
// separated message, for a given validator public key.
func VerifyBlockSignature(pub ed25519.PublicKey, chainID string, index uint64, blockHash string, sig []byte) bool {
	msg := blockSigningMessage(chainID, index, blockHash)
	return ed25519.Verify(pub, msg, sig)
}

func blockSigningMessage(chainID string, index uint64, blockHash string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", chainID, index, blockHash))
}
