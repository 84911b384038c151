package mfa

import "github.com/quillbooks/stepup/internal/models"

// Backend message strings consumed verbatim for classification. Matching is
// exact, case-sensitive, and by suffix.
const (
	msgInvalidChallengeType           = "Invalid challenge type"
	msgRegistrationRequired           = "Registration required"
	msgTooManyAttempts                = "Too many attempts"
	msgInvalidValidateCode            = "Invalid validate code"
	msgMissingChallengeType           = "Missing challengeType"
	msgInvalidKey                     = "Invalid key"
	msgSignatureVerificationFailed    = "Signature verification failed"
	msgNoPendingRegistrationChallenge = "No pending registration challenge"
	msgInvalidSignedChallenge         = "Invalid signed challenge"
	msgAuthenticationRequired         = "Authentication required"
	msgUnauthorized                   = "Unauthorized"
	msgTransactionNotFound            = "Transaction not found"
	msgReviewPeriodExpired            = "Transaction review period expired"
	msgTransactionAlreadyApproved     = "Transaction already approved"
	msgTransactionAlreadyDenied       = "Transaction already denied"
	msgTransactionAlreadyReviewed     = "Transaction already reviewed"
)

// challengeRequestResponseMap classifies REQUEST_AUTHENTICATION_CHALLENGE.
var challengeRequestResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgInvalidChallengeType, models.ReasonBackendInvalidChallengeType},
		{msgMissingChallengeType, models.ReasonBackendMissingChallengeType},
		{msgRegistrationRequired, models.ReasonBackendRegistrationRequired},
		{msgTooManyAttempts, models.ReasonBackendTooManyAttempts},
		{msgInvalidValidateCode, models.ReasonBackendInvalidValidateCode},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}

// registerKeyResponseMap classifies REGISTER_AUTHENTICATION_KEY.
var registerKeyResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgInvalidKey, models.ReasonBackendInvalidKey},
		{msgSignatureVerificationFailed, models.ReasonBackendSignatureVerificationFailed},
		{msgNoPendingRegistrationChallenge, models.ReasonBackendNoPendingRegistrationChallenge},
		{msgTooManyAttempts, models.ReasonBackendTooManyAttempts},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}

// troubleshootResponseMap classifies TROUBLESHOOT_MULTIFACTOR_AUTHENTICATION.
var troubleshootResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgInvalidSignedChallenge, models.ReasonBackendInvalidSignedChallenge},
		{msgSignatureVerificationFailed, models.ReasonBackendSignatureVerificationFailed},
		{msgAuthenticationRequired, models.ReasonBackendAuthenticationRequired},
		{msgRegistrationRequired, models.ReasonBackendRegistrationRequired},
		{msgTooManyAttempts, models.ReasonBackendTooManyAttempts},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}

// revokeResponseMap classifies REVOKE_MULTIFACTOR_AUTHENTICATION_CREDENTIALS.
var revokeResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgAuthenticationRequired, models.ReasonBackendAuthenticationRequired},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}

// authorizeTransactionResponseMap classifies AUTHORIZE_TRANSACTION. The stale
// outcome messages classify relative to the approve attempt.
var authorizeTransactionResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgTransactionNotFound, models.ReasonBackendTransactionNotFound},
		{msgReviewPeriodExpired, models.ReasonBackendReviewPeriodExpired},
		{msgTransactionAlreadyApproved, models.ReasonBackendAlreadyApprovedApproveAttempted},
		{msgTransactionAlreadyDenied, models.ReasonBackendAlreadyDeniedApproveAttempted},
		{msgTransactionAlreadyReviewed, models.ReasonBackendAlreadyReviewed},
		{msgInvalidSignedChallenge, models.ReasonBackendInvalidSignedChallenge},
		{msgAuthenticationRequired, models.ReasonBackendAuthenticationRequired},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}

// denyTransactionResponseMap classifies DENY_TRANSACTION. The stale outcome
// messages classify relative to the deny attempt.
var denyTransactionResponseMap = ResponseMap{
	Success: models.ReasonBackendSuccess,
	ClientErrorMessages: []MessageReason{
		{msgTransactionNotFound, models.ReasonBackendTransactionNotFound},
		{msgReviewPeriodExpired, models.ReasonBackendReviewPeriodExpired},
		{msgTransactionAlreadyApproved, models.ReasonBackendAlreadyApprovedDenyAttempted},
		{msgTransactionAlreadyDenied, models.ReasonBackendAlreadyDeniedDenyAttempted},
		{msgTransactionAlreadyReviewed, models.ReasonBackendAlreadyReviewed},
		{msgAuthenticationRequired, models.ReasonBackendAuthenticationRequired},
		{msgUnauthorized, models.ReasonBackendUnauthorized},
	},
}
