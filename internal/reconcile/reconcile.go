// Package reconcile keeps the locally processed review map consistent with
// the authority-pushed pending review queue.
//
// Two standing subscriptions run for the lifetime of the process: one mirrors
// the locally processed map, the other prunes entries whose transactions have
// left the pending queue. Pruning is the only writer of tombstone deletes to
// the locally processed map.
package reconcile

import (
	"log/slog"
	"sync"

	"github.com/quillbooks/stepup/internal/models"
	"github.com/quillbooks/stepup/internal/store"
)

// Reconciler owns the mirror and prune subscriptions.
type Reconciler struct {
	store store.Store

	// mu guards the mirror. Store notifications run on whichever goroutine
	// committed the change, so the two callbacks can run concurrently.
	mu sync.Mutex
	// localReviews mirrors the locally processed review map. It is written
	// only by the mirror subscription callback.
	localReviews map[string]models.ReviewDecision
	mirrorReady  bool

	cancelMirror func()
	cancelPrune  func()
}

// Start wires the subscriptions against st and returns the running
// reconciler. Call Stop to remove the subscriptions.
func Start(st store.Store) *Reconciler {
	r := &Reconciler{store: st}

	r.cancelMirror = st.Subscribe(store.KeyLocalReviews, r.onLocalReviewsChanged)
	r.cancelPrune = st.Subscribe(store.KeyPendingReviews, r.onPendingReviewsChanged)

	// Seed the mirror so a pending-queue push arriving before any local
	// review change still sees current state.
	if reviews, ok := store.GetLocalReviews(st); ok {
		r.mu.Lock()
		if !r.mirrorReady {
			r.localReviews = reviews
			r.mirrorReady = true
		}
		r.mu.Unlock()
	}

	slog.Debug("Reconciler started")
	return r
}

// Stop removes both subscriptions.
func (r *Reconciler) Stop() {
	r.cancelMirror()
	r.cancelPrune()
	slog.Debug("Reconciler stopped")
}

// onLocalReviewsChanged keeps the in-memory mirror current. It is a read-only
// mirror; no transformation is applied.
func (r *Reconciler) onLocalReviewsChanged(value any) {
	raw, ok := value.(map[string]any)
	if !ok {
		slog.Warn("Reconciler received unexpected local reviews value type")
		return
	}
	mirror := make(map[string]models.ReviewDecision, len(raw))
	for id, decision := range raw {
		switch d := decision.(type) {
		case models.ReviewDecision:
			mirror[id] = d
		case string:
			mirror[id] = models.ReviewDecision(d)
		}
	}

	r.mu.Lock()
	r.localReviews = mirror
	r.mirrorReady = true
	r.mu.Unlock()
	slog.Debug("Reconciler mirrored local reviews", "count", len(mirror))
}

// onPendingReviewsChanged prunes locally processed entries whose transactions
// are no longer pending. Entries are deleted by merging nil tombstones. The
// patch is computed under the lock but merged outside it; the merge notifies
// the mirror callback on this goroutine, which takes the lock again.
func (r *Reconciler) onPendingReviewsChanged(value any) {
	pending, ok := pendingQueueIDs(value)
	if !ok {
		// Uninitialized queue; nothing to reconcile against.
		return
	}

	r.mu.Lock()
	if !r.mirrorReady {
		r.mu.Unlock()
		return
	}
	var patch map[string]any
	for transactionID := range r.localReviews {
		if _, stillPending := pending[transactionID]; !stillPending {
			if patch == nil {
				patch = make(map[string]any)
			}
			patch[transactionID] = nil
		}
	}
	r.mu.Unlock()

	if patch == nil {
		return
	}

	slog.Debug("Reconciler pruning stale local reviews", "count", len(patch))
	if err := r.store.Merge(store.KeyLocalReviews, patch); err != nil {
		slog.Error("Reconciler failed to prune local reviews", "error", err)
	}
}

// pendingQueueIDs extracts the transaction IDs from a pending-queue value.
// The queue arrives typed when written wholesale via Set and generic when
// patched via Merge; both shapes carry the same membership.
func pendingQueueIDs(value any) (map[string]struct{}, bool) {
	switch queue := value.(type) {
	case map[string]models.PendingReview:
		ids := make(map[string]struct{}, len(queue))
		for id := range queue {
			ids[id] = struct{}{}
		}
		return ids, true
	case map[string]any:
		ids := make(map[string]struct{}, len(queue))
		for id := range queue {
			ids[id] = struct{}{}
		}
		return ids, true
	default:
		return nil, false
	}
}
