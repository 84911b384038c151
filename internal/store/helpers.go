package store

import (
	"log/slog"

	"github.com/quillbooks/stepup/internal/models"
)

// GetAccount returns the account record, or the zero record when unset.
func GetAccount(s Store) Account {
	v, ok := s.Get(KeyAccount)
	if !ok {
		return Account{}
	}
	a, ok := v.(Account)
	if !ok {
		slog.Warn("store.GetAccount: unexpected value type at account key")
		return Account{}
	}
	return a
}

// SetAccountLoading updates the loading flag on the account record.
func SetAccountLoading(s Store, loading bool) error {
	a := GetAccount(s)
	a.IsLoading = loading
	return s.Set(KeyAccount, a)
}

// SetAccountPublicKeyIDs replaces the registered public key ID list on the
// account record.
func SetAccountPublicKeyIDs(s Store, keyIDs []string) error {
	a := GetAccount(s)
	a.PublicKeyIDs = keyIDs
	return s.Set(KeyAccount, a)
}

// GetBiometricDevice returns the biometric device record, or the zero record
// when unset.
func GetBiometricDevice(s Store) BiometricDevice {
	v, ok := s.Get(KeyBiometricDevice)
	if !ok {
		return BiometricDevice{}
	}
	d, ok := v.(BiometricDevice)
	if !ok {
		slog.Warn("store.GetBiometricDevice: unexpected value type at device key")
		return BiometricDevice{}
	}
	return d
}

// GetPendingReviews returns the authority-pushed pending review queue. The
// second return reports whether the key has ever been written; callers use it
// to distinguish an uninitialized queue from an empty one.
func GetPendingReviews(s Store) (map[string]models.PendingReview, bool) {
	v, ok := s.Get(KeyPendingReviews)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]models.PendingReview)
	if !ok {
		slog.Warn("store.GetPendingReviews: unexpected value type at pending reviews key")
		return nil, false
	}
	return m, true
}

// GetLocalReviews returns the locally processed review decisions keyed by
// transaction ID.
func GetLocalReviews(s Store) (map[string]models.ReviewDecision, bool) {
	v, ok := s.Get(KeyLocalReviews)
	if !ok {
		return nil, false
	}
	raw, ok := v.(map[string]any)
	if !ok {
		slog.Warn("store.GetLocalReviews: unexpected value type at local reviews key")
		return nil, false
	}
	reviews := make(map[string]models.ReviewDecision, len(raw))
	for id, decision := range raw {
		switch d := decision.(type) {
		case models.ReviewDecision:
			reviews[id] = d
		case string:
			reviews[id] = models.ReviewDecision(d)
		default:
			slog.Warn("store.GetLocalReviews: skipping entry with unexpected decision type", "transactionID", id)
		}
	}
	return reviews, true
}

// RecordLocalReview optimistically records the user's decision for a pending
// transaction review.
func RecordLocalReview(s Store, transactionID string, decision models.ReviewDecision) error {
	return s.Merge(KeyLocalReviews, map[string]any{transactionID: decision})
}
