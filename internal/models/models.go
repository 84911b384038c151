// Package models defines the core data structures for StepUp.
//
// It includes the reason-code vocabulary, challenge payloads, transaction
// review records, and the network command envelope shared across modules.
package models

import "time"

// Reason is the classified outcome of a multifactor authentication step.
// Reasons are drawn from four families: BACKEND (server-classified outcomes),
// EXPO (platform biometric-prompt outcomes), CHALLENGE (local challenge
// handling outcomes) and GENERIC (catch-alls).
type Reason string

// BACKEND family reasons.
const (
	ReasonBackendSuccess                        Reason = "BACKEND.SUCCESS"
	ReasonBackendInvalidChallengeType           Reason = "BACKEND.INVALID_CHALLENGE_TYPE"
	ReasonBackendRegistrationRequired           Reason = "BACKEND.REGISTRATION_REQUIRED"
	ReasonBackendTooManyAttempts                Reason = "BACKEND.TOO_MANY_ATTEMPTS"
	ReasonBackendInvalidValidateCode            Reason = "BACKEND.INVALID_VALIDATE_CODE"
	ReasonBackendMissingChallengeType           Reason = "BACKEND.MISSING_CHALLENGE_TYPE"
	ReasonBackendInvalidKey                     Reason = "BACKEND.INVALID_KEY"
	ReasonBackendSignatureVerificationFailed    Reason = "BACKEND.SIGNATURE_VERIFICATION_FAILED"
	ReasonBackendNoPendingRegistrationChallenge Reason = "BACKEND.NO_PENDING_REGISTRATION_CHALLENGE"
	ReasonBackendInvalidSignedChallenge         Reason = "BACKEND.INVALID_SIGNED_CHALLENGE"
	ReasonBackendAuthenticationRequired         Reason = "BACKEND.AUTHENTICATION_REQUIRED"
	ReasonBackendUnauthorized                   Reason = "BACKEND.UNAUTHORIZED"
	ReasonBackendTransactionNotFound            Reason = "BACKEND.TRANSACTION_NOT_FOUND"
	ReasonBackendReviewPeriodExpired            Reason = "BACKEND.TRANSACTION_REVIEW_PERIOD_EXPIRED"

	// Approve/deny races classify differently depending on which action the
	// user attempted, so each stale-outcome message carries the attempt.
	ReasonBackendAlreadyApprovedApproveAttempted Reason = "BACKEND.ALREADY_APPROVED_APPROVE_ATTEMPTED"
	ReasonBackendAlreadyApprovedDenyAttempted    Reason = "BACKEND.ALREADY_APPROVED_DENY_ATTEMPTED"
	ReasonBackendAlreadyDeniedApproveAttempted   Reason = "BACKEND.ALREADY_DENIED_APPROVE_ATTEMPTED"
	ReasonBackendAlreadyDeniedDenyAttempted      Reason = "BACKEND.ALREADY_DENIED_DENY_ATTEMPTED"
	ReasonBackendAlreadyReviewed                 Reason = "BACKEND.ALREADY_REVIEWED"
)

// EXPO family reasons, decoded from platform biometric-prompt errors.
const (
	ReasonExpoNotInForeground   Reason = "EXPO.NOT_IN_FOREGROUND"
	ReasonExpoInProgress        Reason = "EXPO.IN_PROGRESS"
	ReasonExpoCanceled          Reason = "EXPO.CANCELED"
	ReasonExpoKeyAlreadyExists  Reason = "EXPO.KEY_ALREADY_EXISTS"
	ReasonExpoNoMethodAvailable Reason = "EXPO.NO_AUTHENTICATION_METHOD_AVAILABLE"
	ReasonExpoMissingInterface  Reason = "EXPO.MISSING_INTERFACE"
	ReasonExpoGeneric           Reason = "EXPO.GENERIC"
)

// CHALLENGE family reasons for local challenge handling.
const (
	ReasonChallengeMalformed     Reason = "CHALLENGE.MALFORMED"
	ReasonChallengeSigningFailed Reason = "CHALLENGE.SIGNING_FAILED"
	ReasonChallengeNoPrivateKey  Reason = "CHALLENGE.NO_PRIVATE_KEY"
)

// GENERIC family catch-all reasons.
const (
	ReasonGenericUnknownResponse Reason = "GENERIC.UNKNOWN_RESPONSE"
	ReasonGenericUnhandledError  Reason = "GENERIC.UNHANDLED_ERROR"
	ReasonGenericCanceled        Reason = "GENERIC.CANCELED"
)

// AuthenticationMethod identifies how the user satisfied the local prompt.
type AuthenticationMethod string

const (
	AuthMethodBiometrics AuthenticationMethod = "BIOMETRICS"
	AuthMethodDevicePIN  AuthenticationMethod = "DEVICE_PIN"
)

// ChallengeType distinguishes registration challenges from authentication
// challenges issued by the authority.
type ChallengeType string

const (
	ChallengeTypeRegistration   ChallengeType = "registration"
	ChallengeTypeAuthentication ChallengeType = "authentication"
)

// Challenge is a server-issued payload to be signed by the device key.
// Challenges are requested fresh per attempt and must never be written to
// durable storage; they are consumed by the signing step and discarded.
type Challenge struct {
	Type      ChallengeType `json:"type"`
	Payload   string        `json:"payload"`
	ExpiresAt time.Time     `json:"expiresAt,omitzero"`
}

// SignedChallenge is the device's answer to a Challenge.
type SignedChallenge struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	KeyID     string `json:"keyID"`
}

// KeyInfo describes a public key being registered with the authority. The
// attestation is the new key's signature over the registration challenge
// payload, proving possession at enrollment time.
type KeyInfo struct {
	KeyID       string `json:"keyID"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"publicKey"`
	Attestation string `json:"attestation,omitempty"`
}

// ReviewDecision is the outcome a user chose for a pending transaction review.
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "APPROVE"
	ReviewDecisionDeny    ReviewDecision = "DENY"
)

// PendingReview describes a card transaction awaiting step-up authorization.
// The authority pushes these; the client never mutates them.
type PendingReview struct {
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Merchant     string    `json:"merchant"`
	Created      time.Time `json:"created"`
	CardLastFour string    `json:"cardLastFour"`
}

// Command names the network requests issued against the remote authority.
type Command string

const (
	CommandRequestAuthenticationChallenge Command = "REQUEST_AUTHENTICATION_CHALLENGE"
	CommandRegisterAuthenticationKey      Command = "REGISTER_AUTHENTICATION_KEY"
	CommandTroubleshootMultifactorAuth    Command = "TROUBLESHOOT_MULTIFACTOR_AUTHENTICATION"
	CommandRevokeMultifactorCredentials   Command = "REVOKE_MULTIFACTOR_AUTHENTICATION_CREDENTIALS"
	CommandAuthorizeTransaction           Command = "AUTHORIZE_TRANSACTION"
	CommandDenyTransaction                Command = "DENY_TRANSACTION"
	CommandGetTransactionsPendingReview   Command = "GET_TRANSACTIONS_PENDING_3DS_REVIEW"
)

// Response is the parsed JSON envelope returned by the authority for every
// command. Command-specific fields are simply absent when not applicable.
type Response struct {
	JSONCode  int        `json:"jsonCode"`
	Message   string     `json:"message,omitempty"`
	Challenge *Challenge `json:"challenge,omitempty"`
	// PublicKeys lists the key IDs the authority already holds for the account.
	PublicKeys []string `json:"publicKeys,omitempty"`
	// TransactionsPendingReview is populated for the pending-review query.
	TransactionsPendingReview map[string]PendingReview `json:"transactionsPending3DSReview,omitempty"`
}

// ClassifiedResponse is the uniform result of every transport operation: the
// raw status code, exactly one Reason, and the server message when present.
type ClassifiedResponse struct {
	HTTPStatusCode int
	Reason         Reason
	Message        string
}

// ChallengeResult extends ClassifiedResponse for challenge-request operations.
type ChallengeResult struct {
	ClassifiedResponse
	Challenge  *Challenge
	PublicKeys []string
}
