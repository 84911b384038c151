package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quillbooks/stepup/internal/keystore"
	"github.com/quillbooks/stepup/internal/mfa"
	"github.com/quillbooks/stepup/internal/models"
	"github.com/quillbooks/stepup/internal/store"
)

// Authenticator is the slice of the transport layer the runner drives.
type Authenticator interface {
	RequestRegistrationChallenge(ctx context.Context, validateCode string) models.ChallengeResult
	RequestAuthorizationChallenge(ctx context.Context) models.ChallengeResult
	RegisterAuthenticationKey(ctx context.Context, keyInfo models.KeyInfo, method models.AuthenticationMethod) models.ClassifiedResponse
	TroubleshootMultifactorAuthentication(ctx context.Context, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse
	RevokeMultifactorAuthenticationCredentials(ctx context.Context) models.ClassifiedResponse
	AuthorizeTransaction(ctx context.Context, transactionID string, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse
	DenyTransaction(ctx context.Context, transactionID string) models.ClassifiedResponse
	FireAndForgetDenyTransaction(transactionID string)
}

// ChallengeSigner is the local key custody capability: creating the device
// key against a registration challenge and signing authentication challenges.
type ChallengeSigner interface {
	GenerateKey(challenge models.Challenge) (models.KeyInfo, error)
	SignChallenge(challenge models.Challenge) (models.SignedChallenge, error)
}

// Runner executes scenarios end to end: transport round-trips, local signing,
// state machine transitions, and callback fulfillment. The caller owns the
// machine and the registry; the runner never keeps state between runs.
type Runner struct {
	svc       Authenticator
	signer    ChallengeSigner
	store     store.Store
	callbacks *CallbackRegistry
}

// NewRunner creates a scenario runner.
func NewRunner(svc Authenticator, signer ChallengeSigner, st store.Store, callbacks *CallbackRegistry) *Runner {
	return &Runner{svc: svc, signer: signer, store: st, callbacks: callbacks}
}

// finish applies the terminal transitions for a run and fulfills the
// scenario's callback.
func (r *Runner) finish(m *Machine, result models.ClassifiedResponse) models.ClassifiedResponse {
	scenario := m.State().Scenario
	if result.Reason != models.ReasonBackendSuccess {
		m.Dispatch(models.Action{Type: models.ActionSetError, Reason: result.Reason})
	}
	m.Dispatch(models.Action{Type: models.ActionSetFlowComplete, Flag: true})

	if err := r.callbacks.Fulfill(scenario, result); err != nil {
		slog.Warn("flow.Runner finished without fulfillment callback", "scenario", scenario, "reason", result.Reason)
	}
	slog.Debug("flow.Runner scenario finished", "scenario", scenario, "reason", result.Reason)
	return result
}

// canceled is the local outcome for a run the user never let past the soft
// prompt.
func canceled() models.ClassifiedResponse {
	return models.ClassifiedResponse{Reason: models.ReasonGenericCanceled}
}

// classifySignerError maps a local signing failure onto the Reason
// vocabulary.
func classifySignerError(err error) models.Reason {
	if errors.Is(err, keystore.ErrNoKey) {
		return models.ReasonChallengeNoPrivateKey
	}
	return mfa.DecodePromptErrorWithFallback(err, models.ReasonChallengeSigningFailed)
}

// RunRegistration enrolls a new device key: registration challenge, key
// creation against the challenge, then key registration. The soft prompt must
// have been approved before the biometric enrollment is triggered.
func (r *Runner) RunRegistration(ctx context.Context, m *Machine, method models.AuthenticationMethod) models.ClassifiedResponse {
	state := m.State()
	if !state.SoftPromptApproved {
		return r.finish(m, canceled())
	}

	res := r.svc.RequestRegistrationChallenge(ctx, state.ValidateCode)
	if res.Reason != models.ReasonBackendSuccess {
		return r.finish(m, res.ClassifiedResponse)
	}

	keyInfo, err := r.signer.GenerateKey(*res.Challenge)
	if err != nil {
		slog.Error("flow.Runner key generation failed", "error", err)
		return r.finish(m, models.ClassifiedResponse{Reason: mfa.DecodePromptError(err)})
	}

	return r.finish(m, r.svc.RegisterAuthenticationKey(ctx, keyInfo, method))
}

// RunTroubleshoot performs a diagnostic authentication round-trip with the
// registered device key.
func (r *Runner) RunTroubleshoot(ctx context.Context, m *Machine, method models.AuthenticationMethod) models.ClassifiedResponse {
	res := r.svc.RequestAuthorizationChallenge(ctx)
	if res.Reason != models.ReasonBackendSuccess {
		return r.finish(m, res.ClassifiedResponse)
	}

	signed, err := r.signer.SignChallenge(*res.Challenge)
	if err != nil {
		slog.Error("flow.Runner challenge signing failed", "error", err)
		return r.finish(m, models.ClassifiedResponse{Reason: classifySignerError(err)})
	}

	return r.finish(m, r.svc.TroubleshootMultifactorAuthentication(ctx, signed, method))
}

// RunRevocation removes the account's registered credentials.
func (r *Runner) RunRevocation(ctx context.Context, m *Machine) models.ClassifiedResponse {
	return r.finish(m, r.svc.RevokeMultifactorAuthenticationCredentials(ctx))
}

// RunTransactionReview settles a pending transaction review. Denials need no
// challenge; approvals require the soft prompt, a fresh authentication
// challenge, and a signature. Both paths go through the idempotency guard, so
// a transaction the server already settled resolves locally as already
// reviewed.
func (r *Runner) RunTransactionReview(ctx context.Context, m *Machine, transactionID string, decision models.ReviewDecision, method models.AuthenticationMethod) models.ClassifiedResponse {
	guard := NewReviewGuard(r.store, r.svc)

	if decision == models.ReviewDecisionDeny {
		return r.finish(m, guard.Deny(ctx, transactionID))
	}

	if !m.State().SoftPromptApproved {
		return r.finish(m, canceled())
	}

	res := r.svc.RequestAuthorizationChallenge(ctx)
	if res.Reason != models.ReasonBackendSuccess {
		return r.finish(m, res.ClassifiedResponse)
	}

	signed, err := r.signer.SignChallenge(*res.Challenge)
	if err != nil {
		slog.Error("flow.Runner challenge signing failed", "error", err, "transactionID", transactionID)
		reason := classifySignerError(err)
		if reason == models.ReasonChallengeSigningFailed {
			// Unexpected local abort mid-approval; best-effort cleanup so
			// the review does not sit pending until it expires.
			r.svc.FireAndForgetDenyTransaction(transactionID)
		}
		return r.finish(m, models.ClassifiedResponse{Reason: reason})
	}

	return r.finish(m, guard.Approve(ctx, transactionID, signed, method))
}
