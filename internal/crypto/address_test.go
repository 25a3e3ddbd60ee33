package crypto

import (
	"crypto/ed25519"
	"testing"
)

func TestDeriveAddressRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := DeriveAddress(Testnet, pub)
	if err := ValidateAddress(Testnet, addr); err != nil {
		t.Fatalf("expected valid address, got error: %v", err)
	}
	if err := ValidateAddress(Mainnet, addr); err == nil {
		t.Fatalf("expected prefix mismatch against mainnet")
	}
}

func TestValidateAddressRejectsShortBody(t *testing.T) {
	if err := ValidateAddress(Mainnet, mainnetPrefix+"abcd"); err == nil {
		t.Fatalf("expected error for short body")
	}
}

func TestValidateAddressRejectsNonHex(t *testing.T) {
	bad := mainnetPrefix + "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"
	if err := ValidateAddress(Mainnet, bad); err == nil {
		t.Fatalf("expected error for non-hex body")
	}
}
