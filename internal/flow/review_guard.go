package flow

import (
	"context"
	"log/slog"

	"github.com/quillbooks/stepup/internal/models"
	"github.com/quillbooks/stepup/internal/store"
)

// TransactionReviewer is the slice of the transport layer the review guard
// drives.
type TransactionReviewer interface {
	AuthorizeTransaction(ctx context.Context, transactionID string, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse
	DenyTransaction(ctx context.Context, transactionID string) models.ClassifiedResponse
}

// ReviewGuard applies the client-side idempotency policy for transaction
// reviews: before acting on a tap, the transaction must still be present in
// the locally observed pending review queue. A transaction that has already
// left the queue resolves as already reviewed without a network call; the
// transport layer itself does not enforce this.
type ReviewGuard struct {
	store    store.Store
	reviewer TransactionReviewer
}

// NewReviewGuard creates a guard over the given store and reviewer.
func NewReviewGuard(st store.Store, reviewer TransactionReviewer) *ReviewGuard {
	return &ReviewGuard{store: st, reviewer: reviewer}
}

// stillPending reports whether the transaction is present in the locally
// observed pending review queue.
func (g *ReviewGuard) stillPending(transactionID string) bool {
	pending, ok := store.GetPendingReviews(g.store)
	if !ok {
		return false
	}
	_, present := pending[transactionID]
	return present
}

// alreadyReviewed is the local outcome for a transaction the server (or a
// prior local action) already settled.
func alreadyReviewed() models.ClassifiedResponse {
	return models.ClassifiedResponse{Reason: models.ReasonBackendAlreadyReviewed}
}

// Approve authorizes the transaction if it is still pending locally.
func (g *ReviewGuard) Approve(ctx context.Context, transactionID string, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse {
	if !g.stillPending(transactionID) {
		slog.Debug("ReviewGuard approve on settled transaction", "transactionID", transactionID)
		return alreadyReviewed()
	}
	return g.reviewer.AuthorizeTransaction(ctx, transactionID, signed, method)
}

// Deny denies the transaction if it is still pending locally.
func (g *ReviewGuard) Deny(ctx context.Context, transactionID string) models.ClassifiedResponse {
	if !g.stillPending(transactionID) {
		slog.Debug("ReviewGuard deny on settled transaction", "transactionID", transactionID)
		return alreadyReviewed()
	}
	return g.reviewer.DenyTransaction(ctx, transactionID)
}
