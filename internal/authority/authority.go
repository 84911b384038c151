// Package authority implements an in-memory stand-in for the remote StepUp
// authority.
//
// It serves the network command endpoints with the exact outcome codes and
// message strings of the production authority, backed by a single in-memory
// account. It exists for local development and for exercising the transport
// layer end to end in tests; it is not a production server.
package authority

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quillbooks/stepup/internal/models"
)

// Backend message strings emitted verbatim. The client classifies these by
// suffix; changing one breaks released clients.
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
	msgTransactionNotFound            = "Transaction not found"
	msgReviewPeriodExpired            = "Transaction review period expired"
	msgTransactionAlreadyApproved     = "Transaction already approved"
	msgTransactionAlreadyDenied       = "Transaction already denied"
)

// DefaultChallengeTTL bounds how long an issued challenge stays answerable.
const DefaultChallengeTTL = 5 * time.Minute

// maxAttempts caps failed validate-code attempts before lockout.
const maxAttempts = 5

// Opts holds configuration options for the stub authority.
type Opts struct {
	ValidateCode string
}

// Option defines a configuration option for the stub authority.
type Option func(*Opts)

// WithValidateCode sets the magic code the authority accepts for
// registration challenges.
func WithValidateCode(code string) Option {
	return func(o *Opts) {
		o.ValidateCode = code
	}
}

// registeredKey is a key the account has enrolled.
type registeredKey struct {
	info   models.KeyInfo
	public ed25519.PublicKey
}

// Server is the in-memory authority.
type Server struct {
	mu sync.Mutex

	validateCode string
	failedCodes  int

	keys map[string]registeredKey

	registrationChallenge string
	registrationExpires   time.Time

	authChallenges map[string]time.Time

	pendingReviews map[string]models.PendingReview
	decisions      map[string]models.ReviewDecision
}

// NewServer creates a stub authority from the provided options.
func NewServer(opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("authority.NewServer: stub authority created", "validateCode_set", cfg.ValidateCode != "")
	return &Server{
		validateCode:   cfg.ValidateCode,
		keys:           make(map[string]registeredKey),
		authChallenges: make(map[string]time.Time),
		pendingReviews: make(map[string]models.PendingReview),
		decisions:      make(map[string]models.ReviewDecision),
	}
}

// Handler returns the HTTP handler serving the command endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/command/{command}", s.handleCommand).Methods(http.MethodPost)
	return r
}

// SeedPendingReview adds a transaction awaiting step-up review.
func (s *Server) SeedPendingReview(transactionID string, review models.PendingReview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReviews[transactionID] = review
	slog.Debug("authority seeded pending review", "transactionID", transactionID)
}

// RegisteredKeyIDs lists the account's enrolled key IDs.
func (s *Server) RegisteredKeyIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyIDsLocked()
}

func (s *Server) keyIDsLocked() []string {
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	return ids
}

// commandParams is the request body shared by all commands; unused fields are
// simply absent.
type commandParams struct {
	ChallengeType        models.ChallengeType        `json:"challengeType"`
	ValidateCode         string                      `json:"validateCode"`
	KeyInfo              string                      `json:"keyInfo"`
	AuthenticationMethod models.AuthenticationMethod `json:"authenticationMethod"`
	SignedChallenge      *models.SignedChallenge     `json:"signedChallenge"`
	TransactionID        string                      `json:"transactionID"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := models.Command(mux.Vars(r)["command"])

	var params commandParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		slog.Warn("authority failed to decode command body", "error", err, "command", command)
		writeEnvelope(w, http.StatusBadRequest, models.Response{JSONCode: http.StatusBadRequest, Message: "Malformed request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var resp models.Response
	switch command {
	case models.CommandRequestAuthenticationChallenge:
		resp = s.requestChallenge(params)
	case models.CommandRegisterAuthenticationKey:
		resp = s.registerKey(params)
	case models.CommandTroubleshootMultifactorAuth:
		resp = s.verifyChallenge(params.SignedChallenge)
	case models.CommandRevokeMultifactorCredentials:
		resp = s.revokeCredentials()
	case models.CommandAuthorizeTransaction:
		resp = s.reviewTransaction(params, models.ReviewDecisionApprove)
	case models.CommandDenyTransaction:
		resp = s.reviewTransaction(params, models.ReviewDecisionDeny)
	case models.CommandGetTransactionsPendingReview:
		resp = s.pendingReviewSnapshot()
	default:
		slog.Warn("authority received unknown command", "command", command)
		resp = models.Response{JSONCode: http.StatusNotFound, Message: "Unknown command"}
	}

	writeEnvelope(w, resp.JSONCode, resp)
}

func (s *Server) requestChallenge(params commandParams) models.Response {
	switch params.ChallengeType {
	case "":
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgMissingChallengeType}
	case models.ChallengeTypeRegistration:
		if s.failedCodes >= maxAttempts {
			return models.Response{JSONCode: http.StatusTooManyRequests, Message: msgTooManyAttempts}
		}
		if s.validateCode != "" && params.ValidateCode != s.validateCode {
			s.failedCodes++
			return models.Response{JSONCode: http.StatusUnauthorized, Message: msgInvalidValidateCode}
		}
		s.failedCodes = 0
		s.registrationChallenge = uuid.NewString()
		s.registrationExpires = time.Now().Add(DefaultChallengeTTL)
		return models.Response{
			JSONCode: http.StatusOK,
			Challenge: &models.Challenge{
				Type:      models.ChallengeTypeRegistration,
				Payload:   s.registrationChallenge,
				ExpiresAt: s.registrationExpires,
			},
			PublicKeys: s.keyIDsLocked(),
		}
	case models.ChallengeTypeAuthentication:
		if len(s.keys) == 0 {
			return models.Response{JSONCode: http.StatusForbidden, Message: msgRegistrationRequired}
		}
		payload := uuid.NewString()
		s.authChallenges[payload] = time.Now().Add(DefaultChallengeTTL)
		return models.Response{
			JSONCode: http.StatusOK,
			Challenge: &models.Challenge{
				Type:      models.ChallengeTypeAuthentication,
				Payload:   payload,
				ExpiresAt: s.authChallenges[payload],
			},
			PublicKeys: s.keyIDsLocked(),
		}
	default:
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidChallengeType}
	}
}

func (s *Server) registerKey(params commandParams) models.Response {
	if s.registrationChallenge == "" || time.Now().After(s.registrationExpires) {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgNoPendingRegistrationChallenge}
	}

	var info models.KeyInfo
	if err := json.Unmarshal([]byte(params.KeyInfo), &info); err != nil || info.KeyID == "" || info.PublicKey == "" {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidKey}
	}
	public, err := base64.StdEncoding.DecodeString(info.PublicKey)
	if err != nil || len(public) != ed25519.PublicKeySize {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidKey}
	}
	attestation, err := base64.StdEncoding.DecodeString(info.Attestation)
	if err != nil || !ed25519.Verify(public, []byte(s.registrationChallenge), attestation) {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgSignatureVerificationFailed}
	}

	s.registrationChallenge = ""
	s.keys[info.KeyID] = registeredKey{info: info, public: public}
	slog.Debug("authority registered key", "keyID", info.KeyID)
	return models.Response{JSONCode: http.StatusOK}
}

// verifyChallenge checks a signed authentication challenge against the
// enrolled keys and consumes it on success.
func (s *Server) verifyChallenge(signed *models.SignedChallenge) models.Response {
	if signed == nil {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidSignedChallenge}
	}
	expiry, outstanding := s.authChallenges[signed.Payload]
	if !outstanding || time.Now().After(expiry) {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidSignedChallenge}
	}
	key, enrolled := s.keys[signed.KeyID]
	if !enrolled {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgInvalidKey}
	}
	signature, err := base64.StdEncoding.DecodeString(signed.Signature)
	if err != nil || !ed25519.Verify(key.public, []byte(signed.Payload), signature) {
		return models.Response{JSONCode: http.StatusBadRequest, Message: msgSignatureVerificationFailed}
	}

	delete(s.authChallenges, signed.Payload)
	return models.Response{JSONCode: http.StatusOK}
}

func (s *Server) revokeCredentials() models.Response {
	count := len(s.keys)
	s.keys = make(map[string]registeredKey)
	s.authChallenges = make(map[string]time.Time)
	slog.Debug("authority revoked credentials", "count", count)
	return models.Response{JSONCode: http.StatusOK}
}

func (s *Server) reviewTransaction(params commandParams, decision models.ReviewDecision) models.Response {
	transactionID := params.TransactionID

	if prior, settled := s.decisions[transactionID]; settled {
		message := msgTransactionAlreadyDenied
		if prior == models.ReviewDecisionApprove {
			message = msgTransactionAlreadyApproved
		}
		return models.Response{JSONCode: http.StatusConflict, Message: message}
	}
	review, pending := s.pendingReviews[transactionID]
	if !pending {
		return models.Response{JSONCode: http.StatusNotFound, Message: msgTransactionNotFound}
	}
	if !review.Created.IsZero() && time.Since(review.Created) > 24*time.Hour {
		delete(s.pendingReviews, transactionID)
		return models.Response{JSONCode: http.StatusGone, Message: msgReviewPeriodExpired}
	}

	if decision == models.ReviewDecisionApprove {
		if verify := s.verifyChallenge(params.SignedChallenge); verify.JSONCode != http.StatusOK {
			return verify
		}
	}

	delete(s.pendingReviews, transactionID)
	s.decisions[transactionID] = decision
	slog.Debug("authority settled transaction review", "transactionID", transactionID, "decision", decision)
	return models.Response{JSONCode: http.StatusOK}
}

func (s *Server) pendingReviewSnapshot() models.Response {
	snapshot := make(map[string]models.PendingReview, len(s.pendingReviews))
	for id, review := range s.pendingReviews {
		snapshot[id] = review
	}
	return models.Response{JSONCode: http.StatusOK, TransactionsPendingReview: snapshot}
}

// fallbackErrorResponse is pre-marshaled so envelope writing cannot fail at
// runtime.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Response{JSONCode: http.StatusInternalServerError, Message: "Internal server error"})
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeEnvelope writes the response envelope with the given status code.
func writeEnvelope(w http.ResponseWriter, statusCode int, resp models.Response) {
	jsonData, err := json.Marshal(resp)
	if err != nil {
		slog.Error("authority.writeEnvelope: failed to marshal response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("authority.writeEnvelope: failed to write response", "error", writeErr)
	}
}
