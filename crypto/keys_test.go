package crypto

import "testing"

func TestDilithiumSignAndVerify(t *testing.T) {
	key, err := GenerateKey(AlgoDilithium)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("transfer 100 DGT")
	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub := key.Public()
	if !pub.Verify(msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if pub.Verify([]byte("transfer 101 DGT"), sig) {
		t.Fatalf("expected tampered message to fail verification")
	}
}

func TestLegacyECDSASignAndVerify(t *testing.T) {
	key, err := GenerateKey(AlgoLegacyECDSA)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("transfer 100 DGT")
	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub := key.Public()
	if !pub.Verify(msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	if pub.Verify(msg, tampered) {
		t.Fatalf("expected tampered signature to fail verification")
	}
}

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GenerateKey(AlgoDilithium)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.Public().Address()
	encoded := addr.String()

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round-tripped address mismatch: got %v want %v", decoded, addr)
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	for _, algo := range []Algo{AlgoDilithium, AlgoLegacyECDSA} {
		key, err := GenerateKey(algo)
		if err != nil {
			t.Fatalf("generate key (%s): %v", algo, err)
		}
		restored, err := PrivateKeyFromBytes(key.Bytes())
		if err != nil {
			t.Fatalf("restore key (%s): %v", algo, err)
		}
		msg := []byte("round trip check")
		sig, err := restored.Sign(msg)
		if err != nil {
			t.Fatalf("sign with restored key (%s): %v", algo, err)
		}
		if !restored.Public().Verify(msg, sig) {
			t.Fatalf("restored key (%s) failed to verify its own signature", algo)
		}
	}
}

func TestDeriveKeyFromPassphraseIsDeterministic(t *testing.T) {
	k1, err := DeriveKeyFromPassphrase("correct horse battery staple", AlgoDilithium)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	k2, err := DeriveKeyFromPassphrase("correct horse battery staple", AlgoDilithium)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	if k1.Public().Address() != k2.Public().Address() {
		t.Fatalf("expected deterministic derivation to produce the same address")
	}

	k3, err := DeriveKeyFromPassphrase("a different passphrase", AlgoDilithium)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	if k1.Public().Address() == k3.Public().Address() {
		t.Fatalf("expected different passphrases to derive different addresses")
	}
}

func TestLegacyAddressRoundTrip(t *testing.T) {
	key, err := GenerateKey(AlgoDilithium)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.Public().Address()
	legacy := EncodeLegacyAddress(addr)

	decoded, err := DecodeLegacyAddress(legacy)
	if err != nil {
		t.Fatalf("decode legacy address: %v", err)
	}
	if decoded != addr {
		t.Fatalf("legacy round trip mismatch: got %v want %v", decoded, addr)
	}

	// Replace the last checksum digit with one that differs from it.
	tampered := "0"
	if legacy[len(legacy)-1] == '0' {
		tampered = "1"
	}
	if _, err := DecodeLegacyAddress(legacy[:len(legacy)-1] + tampered); err == nil {
		t.Fatalf("expected checksum mismatch to be rejected")
	}
}
