package mfa

import (
	"testing"

	"github.com/quillbooks/stepup/internal/models"
)

func testResponseMap() ResponseMap {
	return ResponseMap{
		Success: models.ReasonBackendSuccess,
		ClientErrorMessages: []MessageReason{
			{"Invalid key", models.ReasonBackendInvalidKey},
			{"Too many attempts", models.ReasonBackendTooManyAttempts},
		},
	}
}

func TestClassify_SuccessBucketIgnoresMessage(t *testing.T) {
	rm := testResponseMap()
	for _, code := range []int{200, 201, 204, 299} {
		result := Classify(code, rm, "Invalid key")
		if result.Reason != models.ReasonBackendSuccess {
			t.Errorf("code %d: expected success reason, got %s", code, result.Reason)
		}
		if result.HTTPStatusCode != code {
			t.Errorf("code %d: status code not preserved, got %d", code, result.HTTPStatusCode)
		}
	}
}

func TestClassify_ClientErrorMatchesKnownMessage(t *testing.T) {
	rm := testResponseMap()
	result := Classify(400, rm, "Invalid key")
	if result.Reason != models.ReasonBackendInvalidKey {
		t.Errorf("expected invalid key reason, got %s", result.Reason)
	}

	// A transport wrapper prefix must not break matching.
	result = Classify(422, rm, "command failed: Too many attempts")
	if result.Reason != models.ReasonBackendTooManyAttempts {
		t.Errorf("expected too many attempts reason for wrapped message, got %s", result.Reason)
	}
}

func TestClassify_SuffixNotSubstring(t *testing.T) {
	rm := testResponseMap()
	// The known message appears mid-string; matching is by suffix, so this
	// must fall through to unknown-response.
	result := Classify(400, rm, "foo Invalid key bar")
	if result.Reason != models.ReasonGenericUnknownResponse {
		t.Errorf("expected unknown response for mid-string match, got %s", result.Reason)
	}
}

func TestClassify_MissingMessageFallsThrough(t *testing.T) {
	rm := testResponseMap()
	result := Classify(400, rm, "")
	if result.Reason != models.ReasonGenericUnknownResponse {
		t.Errorf("expected unknown response for empty message, got %s", result.Reason)
	}
}

func TestClassify_UnknownMessageFallsThrough(t *testing.T) {
	rm := testResponseMap()
	result := Classify(400, rm, "Something else entirely")
	if result.Reason != models.ReasonGenericUnknownResponse {
		t.Errorf("expected unknown response, got %s", result.Reason)
	}
}

func TestClassify_OutOfBucketCodes(t *testing.T) {
	rm := testResponseMap()
	for _, code := range []int{600, 150, 0, 399, 100} {
		result := Classify(code, rm, "Invalid key")
		if result.Reason != models.ReasonGenericUnknownResponse {
			t.Errorf("code %d: expected unknown response, got %s", code, result.Reason)
		}
	}
}

func TestClassify_SingleReasonClientError(t *testing.T) {
	rm := ResponseMap{
		Success:     models.ReasonBackendSuccess,
		ClientError: models.ReasonBackendUnauthorized,
	}
	result := Classify(403, rm, "whatever the server said")
	if result.Reason != models.ReasonBackendUnauthorized {
		t.Errorf("expected single client error reason, got %s", result.Reason)
	}
}

func TestClassify_ServerErrorBucket(t *testing.T) {
	rm := ResponseMap{
		Success:     models.ReasonBackendSuccess,
		ServerError: models.ReasonGenericUnhandledError,
	}
	result := Classify(503, rm, "")
	if result.Reason != models.ReasonGenericUnhandledError {
		t.Errorf("expected server error reason, got %s", result.Reason)
	}

	// No server error entry means unknown response.
	result = Classify(503, testResponseMap(), "")
	if result.Reason != models.ReasonGenericUnknownResponse {
		t.Errorf("expected unknown response without server error entry, got %s", result.Reason)
	}
}

func TestClassify_EmptyMapAlwaysUnknown(t *testing.T) {
	result := Classify(200, ResponseMap{}, "anything")
	if result.Reason != models.ReasonGenericUnknownResponse {
		t.Errorf("expected unknown response for empty map, got %s", result.Reason)
	}
}

func TestClassify_FirstMatchWinsOnSharedSuffix(t *testing.T) {
	// Two entries where one message is a suffix of the other; iteration
	// order decides, and the table order is the contract.
	rm := ResponseMap{
		Success: models.ReasonBackendSuccess,
		ClientErrorMessages: []MessageReason{
			{"key", models.ReasonBackendInvalidKey},
			{"Invalid key", models.ReasonBackendUnauthorized},
		},
	}
	result := Classify(400, rm, "Invalid key")
	if result.Reason != models.ReasonBackendInvalidKey {
		t.Errorf("expected first table entry to win, got %s", result.Reason)
	}
}
