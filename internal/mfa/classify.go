// Package mfa implements the multifactor authentication challenge/response
// core: response classification, biometric prompt error decoding, and the
// transport operations against the remote authority.
package mfa

import (
	"log/slog"
	"strings"

	"github.com/quillbooks/stepup/internal/models"
)

// statusBucket groups HTTP status codes into the coarse classes the response
// maps are keyed by.
type statusBucket int

const (
	bucketUnclassified statusBucket = iota
	bucketSuccess
	bucketClientError
	bucketServerError
)

// MessageReason pairs a backend message string with the Reason it classifies
// to. Client-error sub-maps are ordered slices so that matching is
// deterministic; the first entry whose message is a suffix of the server
// message wins.
type MessageReason struct {
	Message string
	Reason  models.Reason
}

// ResponseMap is the per-command classification table. Success responses
// always classify to a single Reason. Client errors either classify to a
// single Reason or are resolved by message via ClientErrorMessages.
type ResponseMap struct {
	Success             models.Reason
	ClientError         models.Reason
	ClientErrorMessages []MessageReason
	ServerError         models.Reason
}

// bucketOf buckets a numeric status code. Codes outside every defined range
// stay unclassified.
func bucketOf(code int) statusBucket {
	switch {
	case code >= 200 && code < 300:
		return bucketSuccess
	case code >= 400 && code < 500:
		return bucketClientError
	case code >= 500 && code < 600:
		return bucketServerError
	default:
		return bucketUnclassified
	}
}

// Classify turns a raw HTTP status code and server message into exactly one
// Reason using the command's ResponseMap. A missing status code is coerced to
// zero. Classify is pure and never fails; anything it cannot place becomes
// GENERIC.UNKNOWN_RESPONSE.
func Classify(httpStatusCode int, rm ResponseMap, serverMessage string) models.ClassifiedResponse {
	result := models.ClassifiedResponse{
		HTTPStatusCode: httpStatusCode,
		Reason:         models.ReasonGenericUnknownResponse,
		Message:        serverMessage,
	}

	switch bucketOf(httpStatusCode) {
	case bucketSuccess:
		if rm.Success != "" {
			result.Reason = rm.Success
		}
	case bucketServerError:
		if rm.ServerError != "" {
			result.Reason = rm.ServerError
		}
	case bucketClientError:
		if rm.ClientError != "" {
			result.Reason = rm.ClientError
			break
		}
		if serverMessage == "" {
			break
		}
		// The transport may wrap backend messages with prefix text, so the
		// known message is matched as a suffix rather than by equality.
		for _, mr := range rm.ClientErrorMessages {
			if strings.HasSuffix(serverMessage, mr.Message) {
				result.Reason = mr.Reason
				break
			}
		}
	}

	if result.Reason == models.ReasonGenericUnknownResponse {
		slog.Debug("mfa.Classify: unclassified response", "statusCode", httpStatusCode, "message_set", serverMessage != "")
	}
	return result
}
