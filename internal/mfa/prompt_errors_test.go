package mfa

import (
	"fmt"
	"testing"

	"github.com/quillbooks/stepup/internal/models"
)

func TestDecodePromptError_KnownSubstrings(t *testing.T) {
	cases := []struct {
		raw      string
		expected models.Reason
	}{
		{"UserCancel: authentication canceled by user", models.ReasonExpoCanceled},
		{"app is not in the foreground", models.ReasonExpoNotInForeground},
		{"another prompt is in progress", models.ReasonExpoInProgress},
		{"key with this alias already exists", models.ReasonExpoKeyAlreadyExists},
		{"No authentication method available on this device", models.ReasonExpoNoMethodAvailable},
		{"java.lang.NoSuchMethodError: missing platform API", models.ReasonExpoMissingInterface},
	}
	for _, tc := range cases {
		if got := DecodePromptError(tc.raw); got != tc.expected {
			t.Errorf("decode %q: expected %s, got %s", tc.raw, tc.expected, got)
		}
	}
}

func TestDecodePromptError_UnrecognizedIsGeneric(t *testing.T) {
	if got := DecodePromptError("something nobody has seen before"); got != models.ReasonExpoGeneric {
		t.Errorf("expected generic reason, got %s", got)
	}
}

func TestDecodePromptError_StripsWrapperBeforeSeparator(t *testing.T) {
	// The wrapper text mentions "canceled" but the underlying cause after
	// the separator is what must decide.
	raw := "prompt canceled handler failed Caused by: key with this alias already exists"
	if got := DecodePromptError(raw); got != models.ReasonExpoKeyAlreadyExists {
		t.Errorf("expected already-exists reason from trace after separator, got %s", got)
	}
}

func TestDecodePromptError_AcceptsErrorValues(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", fmt.Errorf("operation canceled"))
	if got := DecodePromptError(err); got != models.ReasonExpoCanceled {
		t.Errorf("expected canceled reason from error value, got %s", got)
	}
}

func TestDecodePromptErrorWithFallback(t *testing.T) {
	// A recognized trace ignores the fallback.
	got := DecodePromptErrorWithFallback("user canceled the prompt", models.ReasonChallengeSigningFailed)
	if got != models.ReasonExpoCanceled {
		t.Errorf("expected canceled reason, fallback must be ignored, got %s", got)
	}

	// An unrecognized trace substitutes the fallback for the generic result.
	got = DecodePromptErrorWithFallback("mystery failure", models.ReasonChallengeSigningFailed)
	if got != models.ReasonChallengeSigningFailed {
		t.Errorf("expected fallback reason, got %s", got)
	}

	// No fallback supplied keeps the generic result.
	got = DecodePromptErrorWithFallback("mystery failure", "")
	if got != models.ReasonExpoGeneric {
		t.Errorf("expected generic reason without fallback, got %s", got)
	}
}
