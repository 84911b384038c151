package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"os"
	"testing"

	"github.com/quillbooks/stepup/internal/models"
)

func newTestKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := New(t.TempDir(), []byte("test-device-secret"))
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	return ks
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", []byte("secret")); err == nil {
		t.Errorf("expected error for empty directory")
	}
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Errorf("expected error for empty device secret")
	}
}

func TestGenerateKey_AttestationVerifies(t *testing.T) {
	ks := newTestKeystore(t)
	challenge := models.Challenge{Type: models.ChallengeTypeRegistration, Payload: "registration-nonce"}

	info, err := ks.GenerateKey(challenge)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if info.KeyID == "" || info.Algorithm != "ed25519" {
		t.Errorf("unexpected key info: %+v", info)
	}

	pub, err := base64.StdEncoding.DecodeString(info.PublicKey)
	if err != nil {
		t.Fatalf("public key not base64: %v", err)
	}
	att, err := base64.StdEncoding.DecodeString(info.Attestation)
	if err != nil {
		t.Fatalf("attestation not base64: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(challenge.Payload), att) {
		t.Errorf("attestation does not verify against the challenge payload")
	}
}

func TestSignChallenge_RoundTrip(t *testing.T) {
	ks := newTestKeystore(t)
	info, err := ks.GenerateKey(models.Challenge{Type: models.ChallengeTypeRegistration, Payload: "r"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	challenge := models.Challenge{Type: models.ChallengeTypeAuthentication, Payload: "auth-nonce"}
	signed, err := ks.SignChallenge(challenge)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.Payload != challenge.Payload || signed.KeyID != info.KeyID {
		t.Errorf("unexpected signed challenge: %+v", signed)
	}

	pub, _ := base64.StdEncoding.DecodeString(info.PublicKey)
	sig, err := base64.StdEncoding.DecodeString(signed.Signature)
	if err != nil {
		t.Fatalf("signature not base64: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(challenge.Payload), sig) {
		t.Errorf("signature does not verify")
	}
}

func TestSignChallenge_NoKey(t *testing.T) {
	ks := newTestKeystore(t)
	if _, err := ks.SignChallenge(models.Challenge{Payload: "x"}); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
	if _, err := ks.KeyID(); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey from KeyID, got %v", err)
	}
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("test-device-secret")

	first, err := New(dir, secret)
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	info, err := first.GenerateKey(models.Challenge{Payload: "r"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	second, err := New(dir, secret)
	if err != nil {
		t.Fatalf("failed to reopen keystore: %v", err)
	}
	keyID, err := second.KeyID()
	if err != nil {
		t.Fatalf("key not readable after reopen: %v", err)
	}
	if keyID != info.KeyID {
		t.Errorf("key ID changed across instances: %s != %s", keyID, info.KeyID)
	}
}

func TestWrongSecretCannotReadKey(t *testing.T) {
	dir := t.TempDir()
	first, err := New(dir, []byte("right-secret"))
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	if _, err := first.GenerateKey(models.Challenge{Payload: "r"}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	second, err := New(dir, []byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to reopen keystore: %v", err)
	}
	if _, err := second.KeyID(); err == nil {
		t.Errorf("expected decryption failure with wrong secret")
	}
}

func TestDeleteKey(t *testing.T) {
	ks := newTestKeystore(t)
	if err := ks.DeleteKey(); err != nil {
		t.Errorf("deleting an absent key must be a no-op: %v", err)
	}

	if _, err := ks.GenerateKey(models.Challenge{Payload: "r"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := ks.DeleteKey(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ks.KeyID(); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey after delete, got %v", err)
	}
}

func TestGenerateKey_ReplacesPreviousKey(t *testing.T) {
	ks := newTestKeystore(t)
	first, err := ks.GenerateKey(models.Challenge{Payload: "r1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := ks.GenerateKey(models.Challenge{Payload: "r2"})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if first.KeyID == second.KeyID {
		t.Errorf("regeneration must mint a new key ID")
	}
	keyID, err := ks.KeyID()
	if err != nil {
		t.Fatalf("key ID: %v", err)
	}
	if keyID != second.KeyID {
		t.Errorf("stored key not replaced: %s", keyID)
	}
	// Only one key file lives in the state directory.
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single key file, found %d entries", len(entries))
	}
}
