package crypto

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestCreateThenLoadIdentity(t *testing.T) {
	dir := t.TempDir()
	logger := log.New()
	logger.SetOutput(io.Discard)

	id, err := Create(dir, logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id.RewardAddress() != "" {
		t.Fatalf("fresh identity should have no bound reward address")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address(Testnet) != id.Address(Testnet) {
		t.Fatalf("address mismatch after reload: %s vs %s", loaded.Address(Testnet), id.Address(Testnet))
	}
}

func TestBindRewardAddressPersists(t *testing.T) {
	dir := t.TempDir()
	id, err := Create(dir, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := id.Address(Mainnet)
	if err := id.BindRewardAddress(want); err != nil {
		t.Fatalf("bind: %v", err)
	}
	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RewardAddress() != want {
		t.Fatalf("reward address not persisted: got %q want %q", reloaded.RewardAddress(), want)
	}
}

func TestSignBlockDomainSeparation(t *testing.T) {
	id, err := Create(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sig := id.SignBlock("lvenc-testnet", 5, "deadbeef")
	if !VerifyBlockSignature(id.PublicKey(), "lvenc-testnet", 5, "deadbeef", sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifyBlockSignature(id.PublicKey(), "lvenc-testnet", 6, "deadbeef", sig) {
		t.Fatalf("signature must not verify across a different index (domain separation)")
	}
	if VerifyBlockSignature(id.PublicKey(), "other-chain", 5, "deadbeef", sig) {
		t.Fatalf("signature must not verify across a different chain id")
	}
}
