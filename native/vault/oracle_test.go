package vault

import (
	"errors"
	"testing"

	"zkusd/crypto"
)

func newOracleKey(t *testing.T) (*crypto.PrivateKey, crypto.Address) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, key.PubKey().Address()
}

func TestVerifyValidAttestation(t *testing.T) {
	key, signer := newOracleKey(t)
	att, err := SignAttestation(key, 2*Precision, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := NewVerifier(signer).Verify(att, 42); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedPrice(t *testing.T) {
	key, signer := newOracleKey(t)
	att, err := SignAttestation(key, 2*Precision, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	att.Price = 3 * Precision
	if err := NewVerifier(signer).Verify(att, 42); !errors.Is(err, ErrOracleSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, _ := newOracleKey(t)
	_, otherSigner := newOracleKey(t)
	att, err := SignAttestation(key, Precision, 7)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := NewVerifier(otherSigner).Verify(att, 7); !errors.Is(err, ErrOracleSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyRejectsHeightMismatch(t *testing.T) {
	key, signer := newOracleKey(t)
	verifier := NewVerifier(signer)
	for _, height := range []uint64{41, 43, 0, 1000} {
		att, err := SignAttestation(key, Precision, height)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if err := verifier.Verify(att, 42); !errors.Is(err, ErrOracleStale) {
			t.Fatalf("height %d: expected stale error, got %v", height, err)
		}
	}
}

func TestVerifyRejectsZeroPrice(t *testing.T) {
	key, signer := newOracleKey(t)
	att, err := SignAttestation(key, 0, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := NewVerifier(signer).Verify(att, 42); !errors.Is(err, ErrOraclePrice) {
		t.Fatalf("expected price error, got %v", err)
	}
}

func TestVerifyRejectsTruncatedSignature(t *testing.T) {
	key, signer := newOracleKey(t)
	att, err := SignAttestation(key, Precision, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	att.Signature = att.Signature[:64]
	if err := NewVerifier(signer).Verify(att, 42); !errors.Is(err, ErrOracleSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}
