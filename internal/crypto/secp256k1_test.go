package crypto

import (
	"strings"
	"testing"
)

func TestSecp256k1SignVerifyRoundTrip(t *testing.T) {
	kp, err := NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pub := kp.PublicKeyBytes()
	if len(pub) != Secp256k1PubKeyLen {
		t.Fatalf("compressed public key length = %d, want %d", len(pub), Secp256k1PubKeyLen)
	}

	msg := []byte("a1b2c3-canonical-tx-id")
	sig := kp.Sign(msg)
	if !VerifySecp256k1(pub, msg, sig) {
		t.Fatal("signature should verify against its own key and message")
	}
}

func TestSecp256k1VerifyRejectsTamperAndWrongKey(t *testing.T) {
	kp, err := NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	other, err := NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	msg := []byte("a1b2c3-canonical-tx-id")
	sig := kp.Sign(msg)

	if VerifySecp256k1(kp.PublicKeyBytes(), []byte("tampered"), sig) {
		t.Fatal("signature must not verify over a different message")
	}
	if VerifySecp256k1(other.PublicKeyBytes(), msg, sig) {
		t.Fatal("signature must not verify under a different key")
	}
	if VerifySecp256k1(kp.PublicKeyBytes(), msg, []byte("not-a-der-signature")) {
		t.Fatal("malformed signature bytes must not verify")
	}
}

func TestSecp256k1AddressDerivation(t *testing.T) {
	kp, err := NewSecp256k1KeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	addr := DeriveAddress(Testnet, kp.PublicKeyBytes())
	if !strings.HasPrefix(addr, Testnet.Prefix()) {
		t.Fatalf("address %q missing testnet prefix", addr)
	}
	if err := ValidateAddress(Testnet, addr); err != nil {
		t.Fatalf("derived address should validate: %v", err)
	}
}
