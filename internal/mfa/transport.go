package mfa

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quillbooks/stepup/internal/models"
	"github.com/quillbooks/stepup/internal/store"
)

// Requester issues one network command and returns the parsed response
// envelope, or an error on transport failure.
type Requester interface {
	Request(ctx context.Context, command models.Command, params map[string]any) (*models.Response, error)
}

// Service implements the challenge and key operations against the remote
// authority. Every operation issues exactly one network call and converts all
// failures into a classified result; callers never see raw transport errors.
type Service struct {
	api   Requester
	store store.Store
}

// NewService creates a transport service over the given authority client and
// local store.
func NewService(api Requester, st store.Store) *Service {
	slog.Debug("Creating mfa.Service")
	return &Service{api: api, store: st}
}

// unknownResult is the classified shape every transport failure collapses to.
func unknownResult() models.ClassifiedResponse {
	return models.ClassifiedResponse{
		HTTPStatusCode: 0,
		Reason:         models.ReasonGenericUnknownResponse,
	}
}

// requestChallenge issues the shared challenge command and resolves the
// challenge payload out of the envelope.
func (s *Service) requestChallenge(ctx context.Context, params map[string]any, rm ResponseMap) models.ChallengeResult {
	resp, err := s.api.Request(ctx, models.CommandRequestAuthenticationChallenge, params)
	if err != nil {
		slog.Error("mfa.Service challenge request failed", "error", err)
		return models.ChallengeResult{ClassifiedResponse: unknownResult()}
	}

	result := models.ChallengeResult{
		ClassifiedResponse: Classify(resp.JSONCode, rm, resp.Message),
		Challenge:          resp.Challenge,
		PublicKeys:         resp.PublicKeys,
	}
	if result.Reason == rm.Success && resp.Challenge == nil {
		// A success envelope without a challenge payload cannot be signed.
		slog.Error("mfa.Service challenge request succeeded without challenge payload", "jsonCode", resp.JSONCode)
		result.Reason = models.ReasonChallengeMalformed
	}
	slog.Debug("mfa.Service challenge request classified", "reason", result.Reason, "jsonCode", resp.JSONCode)
	return result
}

// RequestRegistrationChallenge asks the authority for a registration
// challenge. The account loading flag is set before the call and always
// cleared when the call settles.
func (s *Service) RequestRegistrationChallenge(ctx context.Context, validateCode string) models.ChallengeResult {
	if err := store.SetAccountLoading(s.store, true); err != nil {
		slog.Error("mfa.Service failed to set account loading flag", "error", err)
	}
	defer func() {
		if err := store.SetAccountLoading(s.store, false); err != nil {
			slog.Error("mfa.Service failed to clear account loading flag", "error", err)
		}
	}()

	return s.requestChallenge(ctx, map[string]any{
		"challengeType": models.ChallengeTypeRegistration,
		"validateCode":  validateCode,
	}, challengeRequestResponseMap)
}

// RequestAuthorizationChallenge asks the authority for an authentication
// challenge for a registered device.
func (s *Service) RequestAuthorizationChallenge(ctx context.Context) models.ChallengeResult {
	return s.requestChallenge(ctx, map[string]any{
		"challengeType": models.ChallengeTypeAuthentication,
	}, challengeRequestResponseMap)
}

// RegisterAuthenticationKey submits a freshly generated public key for
// registration. The key info is serialized to a transport-safe string.
func (s *Service) RegisterAuthenticationKey(ctx context.Context, keyInfo models.KeyInfo, method models.AuthenticationMethod) models.ClassifiedResponse {
	serialized, err := json.Marshal(keyInfo)
	if err != nil {
		slog.Error("mfa.Service failed to serialize key info", "error", err, "keyID", keyInfo.KeyID)
		return unknownResult()
	}

	resp, err := s.api.Request(ctx, models.CommandRegisterAuthenticationKey, map[string]any{
		"keyInfo":              string(serialized),
		"authenticationMethod": method,
	})
	if err != nil {
		slog.Error("mfa.Service key registration failed", "error", err, "keyID", keyInfo.KeyID)
		return unknownResult()
	}

	result := Classify(resp.JSONCode, registerKeyResponseMap, resp.Message)
	slog.Debug("mfa.Service key registration classified", "reason", result.Reason, "keyID", keyInfo.KeyID)
	return result
}

// TroubleshootMultifactorAuthentication submits a signed challenge for
// verification outside a transaction context, used to diagnose a device whose
// step-ups keep failing.
func (s *Service) TroubleshootMultifactorAuthentication(ctx context.Context, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse {
	resp, err := s.api.Request(ctx, models.CommandTroubleshootMultifactorAuth, map[string]any{
		"signedChallenge":      signed,
		"authenticationMethod": method,
	})
	if err != nil {
		slog.Error("mfa.Service troubleshoot request failed", "error", err)
		return unknownResult()
	}

	result := Classify(resp.JSONCode, troubleshootResponseMap, resp.Message)
	slog.Debug("mfa.Service troubleshoot classified", "reason", result.Reason)
	return result
}

// RevokeMultifactorAuthenticationCredentials removes every registered key for
// the account. The loading flag is set optimistically and cleared on both
// outcomes; on success the account's public key ID list is cleared as well.
func (s *Service) RevokeMultifactorAuthenticationCredentials(ctx context.Context) models.ClassifiedResponse {
	if err := store.SetAccountLoading(s.store, true); err != nil {
		slog.Error("mfa.Service failed to set account loading flag", "error", err)
	}
	defer func() {
		if err := store.SetAccountLoading(s.store, false); err != nil {
			slog.Error("mfa.Service failed to clear account loading flag", "error", err)
		}
	}()

	resp, err := s.api.Request(ctx, models.CommandRevokeMultifactorCredentials, nil)
	if err != nil {
		slog.Error("mfa.Service credential revocation failed", "error", err)
		return unknownResult()
	}

	result := Classify(resp.JSONCode, revokeResponseMap, resp.Message)
	if result.Reason == revokeResponseMap.Success {
		if err := store.SetAccountPublicKeyIDs(s.store, nil); err != nil {
			slog.Error("mfa.Service failed to clear public key IDs", "error", err)
		}
	}
	slog.Debug("mfa.Service credential revocation classified", "reason", result.Reason)
	return result
}

// AuthorizeTransaction approves a pending transaction review with a signed
// challenge. The approval is recorded locally before the network call so the
// UI reflects the user's decision while the request is in flight.
func (s *Service) AuthorizeTransaction(ctx context.Context, transactionID string, signed models.SignedChallenge, method models.AuthenticationMethod) models.ClassifiedResponse {
	if err := store.RecordLocalReview(s.store, transactionID, models.ReviewDecisionApprove); err != nil {
		slog.Error("mfa.Service failed to record optimistic approval", "error", err, "transactionID", transactionID)
	}

	resp, err := s.api.Request(ctx, models.CommandAuthorizeTransaction, map[string]any{
		"transactionID":        transactionID,
		"signedChallenge":      signed,
		"authenticationMethod": method,
	})
	if err != nil {
		slog.Error("mfa.Service transaction authorization failed", "error", err, "transactionID", transactionID)
		return unknownResult()
	}

	result := Classify(resp.JSONCode, authorizeTransactionResponseMap, resp.Message)
	slog.Debug("mfa.Service transaction authorization classified", "reason", result.Reason, "transactionID", transactionID)
	return result
}

// DenyTransaction denies a pending transaction review. The denial is recorded
// locally before the network call.
func (s *Service) DenyTransaction(ctx context.Context, transactionID string) models.ClassifiedResponse {
	if err := store.RecordLocalReview(s.store, transactionID, models.ReviewDecisionDeny); err != nil {
		slog.Error("mfa.Service failed to record optimistic denial", "error", err, "transactionID", transactionID)
	}

	resp, err := s.api.Request(ctx, models.CommandDenyTransaction, map[string]any{
		"transactionID": transactionID,
	})
	if err != nil {
		slog.Error("mfa.Service transaction denial failed", "error", err, "transactionID", transactionID)
		return unknownResult()
	}

	result := Classify(resp.JSONCode, denyTransactionResponseMap, resp.Message)
	slog.Debug("mfa.Service transaction denial classified", "reason", result.Reason, "transactionID", transactionID)
	return result
}

// FireAndForgetDenyTransaction issues a deny without awaiting the result.
// Used for best-effort cleanup after an unexpected client-side abort; the
// outcome is logged and never surfaced.
func (s *Service) FireAndForgetDenyTransaction(transactionID string) {
	slog.Debug("mfa.Service fire-and-forget denial issued", "transactionID", transactionID)
	go func() {
		result := s.DenyTransaction(context.Background(), transactionID)
		slog.Debug("mfa.Service fire-and-forget denial settled", "reason", result.Reason, "transactionID", transactionID)
	}()
}

// IsTransactionStillPendingReview asks the authority whether the transaction
// still awaits review. It queries the server directly rather than trusting
// the locally mirrored queue.
func (s *Service) IsTransactionStillPendingReview(ctx context.Context, transactionID string) (bool, error) {
	resp, err := s.api.Request(ctx, models.CommandGetTransactionsPendingReview, nil)
	if err != nil {
		slog.Error("mfa.Service pending review query failed", "error", err, "transactionID", transactionID)
		return false, err
	}
	_, pending := resp.TransactionsPendingReview[transactionID]
	slog.Debug("mfa.Service pending review query completed", "transactionID", transactionID, "pending", pending)
	return pending, nil
}
