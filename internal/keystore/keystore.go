// Package keystore manages the device authentication key for StepUp.
//
// It generates the ed25519 keypair answering authority challenges, signs
// challenge payloads, and keeps the private key encrypted at rest. The
// encryption key is derived from a device secret with HKDF-SHA256.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/quillbooks/stepup/internal/models"
)

const (
	// keyFileName is the encrypted private key file inside the state directory.
	keyFileName = "device_key.bin"
	// keyFilePermissions keeps the key file readable by the owning user only.
	keyFilePermissions = 0600
	// keyAlgorithm names the signature scheme reported to the authority.
	keyAlgorithm = "ed25519"
)

// ErrNoKey is returned when signing is requested before a key exists.
var ErrNoKey = fmt.Errorf("no device key present")

// Keystore holds the device key under a state directory.
type Keystore struct {
	dir    string
	secret [32]byte
}

// storedKey is the serialized form of the key material before encryption.
type storedKey struct {
	KeyID      string `json:"keyID"`
	PrivateKey []byte `json:"privateKey"`
}

// New creates a keystore rooted at dir. deviceSecret is the device-specific
// secret the at-rest encryption key is derived from; it must not be empty.
func New(dir string, deviceSecret []byte) (*Keystore, error) {
	if dir == "" {
		return nil, fmt.Errorf("keystore directory not set")
	}
	if len(deviceSecret) == 0 {
		return nil, fmt.Errorf("device secret not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Keystore failed to create state directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create keystore directory %s: %w", dir, err)
	}

	ks := &Keystore{dir: dir}
	h := hkdf.New(sha256.New, deviceSecret, nil, []byte("device-key-encryption"))
	if _, err := io.ReadFull(h, ks.secret[:]); err != nil {
		return nil, fmt.Errorf("failed to derive keystore secret: %w", err)
	}
	slog.Debug("Keystore initialized", "dir", dir)
	return ks, nil
}

// GenerateKey creates a fresh ed25519 keypair, stores the private key
// encrypted at rest, and returns the public half for registration. The new
// key signs the registration challenge payload so the returned info carries
// a possession attestation. Any previous key is replaced.
func (ks *Keystore) GenerateKey(challenge models.Challenge) (models.KeyInfo, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		slog.Error("Keystore key generation failed", "error", err)
		return models.KeyInfo{}, fmt.Errorf("failed to generate device key: %w", err)
	}

	sk := storedKey{
		KeyID:      uuid.NewString(),
		PrivateKey: priv,
	}
	if err := ks.save(sk); err != nil {
		return models.KeyInfo{}, err
	}

	attestation := ed25519.Sign(priv, []byte(challenge.Payload))
	info := models.KeyInfo{
		KeyID:       sk.KeyID,
		Algorithm:   keyAlgorithm,
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
		Attestation: base64.StdEncoding.EncodeToString(attestation),
	}
	slog.Debug("Keystore generated device key", "keyID", info.KeyID)
	return info, nil
}

// SignChallenge signs the challenge payload with the stored device key.
func (ks *Keystore) SignChallenge(challenge models.Challenge) (models.SignedChallenge, error) {
	sk, err := ks.load()
	if err != nil {
		return models.SignedChallenge{}, err
	}
	sig := ed25519.Sign(ed25519.PrivateKey(sk.PrivateKey), []byte(challenge.Payload))
	slog.Debug("Keystore signed challenge", "keyID", sk.KeyID, "challengeType", challenge.Type)
	return models.SignedChallenge{
		Payload:   challenge.Payload,
		Signature: base64.StdEncoding.EncodeToString(sig),
		KeyID:     sk.KeyID,
	}, nil
}

// KeyID returns the stored key's identifier, or ErrNoKey.
func (ks *Keystore) KeyID() (string, error) {
	sk, err := ks.load()
	if err != nil {
		return "", err
	}
	return sk.KeyID, nil
}

// DeleteKey removes the stored key. Deleting an absent key is a no-op.
func (ks *Keystore) DeleteKey() error {
	path := filepath.Join(ks.dir, keyFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("Keystore failed to delete key file", "error", err, "path", path)
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	slog.Debug("Keystore deleted device key")
	return nil
}

// save encrypts and writes the key material.
func (ks *Keystore) save(sk storedKey) error {
	plain, err := json.Marshal(sk)
	if err != nil {
		return fmt.Errorf("failed to marshal key material: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &ks.secret)

	path := filepath.Join(ks.dir, keyFileName)
	if err := os.WriteFile(path, sealed, keyFilePermissions); err != nil {
		slog.Error("Keystore failed to write key file", "error", err, "path", path)
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// load reads and decrypts the key material.
func (ks *Keystore) load() (storedKey, error) {
	path := filepath.Join(ks.dir, keyFileName)
	sealed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storedKey{}, ErrNoKey
		}
		slog.Error("Keystore failed to read key file", "error", err, "path", path)
		return storedKey{}, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(sealed) < 24 {
		return storedKey{}, fmt.Errorf("key file too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &ks.secret)
	if !ok {
		slog.Error("Keystore failed to decrypt key file", "path", path)
		return storedKey{}, fmt.Errorf("failed to decrypt key file")
	}

	var sk storedKey
	if err := json.Unmarshal(plain, &sk); err != nil {
		return storedKey{}, fmt.Errorf("failed to unmarshal key material: %w", err)
	}
	return sk, nil
}
