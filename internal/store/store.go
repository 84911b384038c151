// Package store provides the reactive local key-value store for StepUp.
//
// It offers an in-memory store with change subscriptions plus SQLite and
// PostgreSQL backends that write the durable keys through to disk. Values are
// merged per key; merging nil into a keyed map entry deletes it.
package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillbooks/stepup/internal/models"
)

// Key identifies a record in the local store.
type Key string

// Store keys owned by the multifactor authentication core.
const (
	// KeyAccount holds the account status record, including the loading flag
	// and the registered public key IDs.
	KeyAccount Key = "account"
	// KeyBiometricDevice holds the local biometric device state.
	KeyBiometricDevice Key = "biometricDevice"
	// KeyPendingReviews mirrors the authority-pushed pending review queue.
	// The core only ever reads it.
	KeyPendingReviews Key = "transactionsPendingReview"
	// KeyLocalReviews records optimistic approve/deny outcomes awaiting
	// server confirmation.
	KeyLocalReviews Key = "locallyProcessedReviews"
)

// Account is the value held at KeyAccount.
type Account struct {
	IsLoading    bool     `json:"isLoading"`
	PublicKeyIDs []string `json:"publicKeyIDs,omitempty"`
}

// BiometricDevice is the value held at KeyBiometricDevice.
type BiometricDevice struct {
	Registered bool   `json:"registered"`
	KeyID      string `json:"keyID,omitempty"`
}

// Store is a change-notifying key-value store. Set replaces the value at a
// key; Merge applies a keyed patch into the map held at a key, deleting
// entries patched to nil. Subscribers observe the committed value after every
// change to their key.
type Store interface {
	// Get returns the value at key and whether it has ever been written.
	Get(key Key) (any, bool)
	// Set replaces the value at key and notifies subscribers.
	Set(key Key, value any) error
	// Merge applies patch into the map at key. A nil patch value deletes the
	// entry. Merging into an unset key starts from an empty map.
	Merge(key Key, patch map[string]any) error
	// Subscribe registers fn for changes to key. The returned cancel
	// function removes the subscription; it is safe to call more than once.
	Subscribe(key Key, fn func(value any)) (cancel func())
	// Close releases any resources held by the backend.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// decodeValue unmarshals a persisted value into the concrete type held at
// key, so loaded state is indistinguishable from freshly written state.
func decodeValue(key Key, raw []byte) (any, error) {
	switch key {
	case KeyAccount:
		var a Account
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode account record: %w", err)
		}
		return a, nil
	case KeyBiometricDevice:
		var d BiometricDevice
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode biometric device record: %w", err)
		}
		return d, nil
	case KeyPendingReviews:
		var m map[string]models.PendingReview
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode pending reviews: %w", err)
		}
		return m, nil
	case KeyLocalReviews:
		var m map[string]models.ReviewDecision
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode local reviews: %w", err)
		}
		generic := make(map[string]any, len(m))
		for id, decision := range m {
			generic[id] = decision
		}
		return generic, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode value for key %s: %w", key, err)
		}
		return v, nil
	}
}
