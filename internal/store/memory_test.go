package store

import (
	"reflect"
	"testing"

	"github.com/quillbooks/stepup/internal/models"
)

func TestMemoryStore_GetUnsetKey(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Get(KeyAccount); ok {
		t.Errorf("unset key must report ok=false")
	}
}

func TestMemoryStore_SetReplacesValue(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Set(KeyAccount, Account{IsLoading: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(KeyAccount, Account{PublicKeyIDs: []string{"k1"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	a := GetAccount(s)
	if a.IsLoading {
		t.Errorf("Set must replace, not merge: %+v", a)
	}
	if !reflect.DeepEqual(a.PublicKeyIDs, []string{"k1"}) {
		t.Errorf("unexpected key IDs: %v", a.PublicKeyIDs)
	}
}

func TestMemoryStore_MergeIntoUnsetKey(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Merge(KeyLocalReviews, map[string]any{"A": models.ReviewDecisionApprove}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	reviews, ok := GetLocalReviews(s)
	if !ok {
		t.Fatalf("merge must initialize the key")
	}
	if reviews["A"] != models.ReviewDecisionApprove {
		t.Errorf("unexpected reviews: %v", reviews)
	}
}

func TestMemoryStore_MergeNilDeletesEntry(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Merge(KeyLocalReviews, map[string]any{
		"A": models.ReviewDecisionApprove,
		"B": models.ReviewDecisionDeny,
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.Merge(KeyLocalReviews, map[string]any{"A": nil}); err != nil {
		t.Fatalf("merge tombstone: %v", err)
	}
	reviews, _ := GetLocalReviews(s)
	if _, ok := reviews["A"]; ok {
		t.Errorf("tombstoned entry survived: %v", reviews)
	}
	if reviews["B"] != models.ReviewDecisionDeny {
		t.Errorf("untouched entry lost: %v", reviews)
	}
}

func TestMemoryStore_MergeNilIntoUnsetKeyYieldsEmptyMap(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Merge(KeyLocalReviews, map[string]any{"A": nil}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	reviews, ok := GetLocalReviews(s)
	if !ok || len(reviews) != 0 {
		t.Errorf("expected initialized empty map, got %v (ok=%v)", reviews, ok)
	}
}

func TestMemoryStore_SubscribersObserveCommittedValue(t *testing.T) {
	s := NewMemoryStore()

	var seen []map[string]any
	cancel := s.Subscribe(KeyLocalReviews, func(value any) {
		m, ok := value.(map[string]any)
		if !ok {
			t.Errorf("subscriber received %T, want map[string]any", value)
			return
		}
		seen = append(seen, m)
	})
	defer cancel()

	if err := s.Merge(KeyLocalReviews, map[string]any{"A": models.ReviewDecisionApprove}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.Merge(KeyLocalReviews, map[string]any{"A": nil}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if len(seen[0]) != 1 || len(seen[1]) != 0 {
		t.Errorf("subscribers must see complete snapshots: %v", seen)
	}
}

func TestMemoryStore_SubscribersScopedToKey(t *testing.T) {
	s := NewMemoryStore()

	var notified int
	cancel := s.Subscribe(KeyAccount, func(any) { notified++ })
	defer cancel()

	if err := s.Set(KeyBiometricDevice, BiometricDevice{Registered: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if notified != 0 {
		t.Errorf("subscriber notified for a different key")
	}
}

func TestMemoryStore_CancelStopsNotifications(t *testing.T) {
	s := NewMemoryStore()

	var notified int
	cancel := s.Subscribe(KeyAccount, func(any) { notified++ })
	if err := s.Set(KeyAccount, Account{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	cancel()
	cancel() // safe to call twice
	if err := s.Set(KeyAccount, Account{IsLoading: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
}

func TestMemoryStore_SubscriberMayWriteBack(t *testing.T) {
	s := NewMemoryStore()

	cancel := s.Subscribe(KeyPendingReviews, func(any) {
		// Re-entrant write from a notification must not deadlock.
		if err := s.Merge(KeyLocalReviews, map[string]any{"A": nil}); err != nil {
			t.Errorf("write-back failed: %v", err)
		}
	})
	defer cancel()

	if err := s.Set(KeyPendingReviews, map[string]models.PendingReview{}); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestSetAccountLoadingPreservesKeyIDs(t *testing.T) {
	s := NewMemoryStore()
	if err := SetAccountPublicKeyIDs(s, []string{"k1", "k2"}); err != nil {
		t.Fatalf("set key IDs: %v", err)
	}
	if err := SetAccountLoading(s, true); err != nil {
		t.Fatalf("set loading: %v", err)
	}
	a := GetAccount(s)
	if !a.IsLoading || !reflect.DeepEqual(a.PublicKeyIDs, []string{"k1", "k2"}) {
		t.Errorf("loading flag update clobbered the record: %+v", a)
	}
}

func TestGetPendingReviews_UninitializedVsEmpty(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := GetPendingReviews(s); ok {
		t.Errorf("unwritten queue must report uninitialized")
	}
	if err := s.Set(KeyPendingReviews, map[string]models.PendingReview{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	queue, ok := GetPendingReviews(s)
	if !ok || queue == nil || len(queue) != 0 {
		t.Errorf("written empty queue must report initialized, got %v (ok=%v)", queue, ok)
	}
}
