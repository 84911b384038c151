package mfa

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/quillbooks/stepup/internal/models"
)

// promptErrorSeparator strips wrapper text the platform prepends to the
// underlying prompt failure. Everything after the first occurrence is the
// interesting part.
const promptErrorSeparator = "Caused by:"

// promptErrorPatterns is scanned in order; the first substring found in the
// error trace decides the Reason.
var promptErrorPatterns = []struct {
	substring string
	reason    models.Reason
}{
	{"not in the foreground", models.ReasonExpoNotInForeground},
	{"in progress", models.ReasonExpoInProgress},
	{"canceled", models.ReasonExpoCanceled},
	{"already exists", models.ReasonExpoKeyAlreadyExists},
	{"No authentication method available", models.ReasonExpoNoMethodAvailable},
	{"NoSuchMethodError", models.ReasonExpoMissingInterface},
}

// DecodePromptError maps a platform biometric-prompt failure onto the Reason
// vocabulary. Unrecognized failures decode to EXPO.GENERIC.
func DecodePromptError(rawError any) models.Reason {
	trace := fmt.Sprintf("%v", rawError)

	// Drop the wrapper text ahead of the separator when one is present.
	if parts := strings.SplitN(trace, promptErrorSeparator, 2); len(parts) == 2 {
		trace = strings.TrimSpace(parts[1])
	}

	for _, p := range promptErrorPatterns {
		if strings.Contains(trace, p.substring) {
			return p.reason
		}
	}

	slog.Debug("mfa.DecodePromptError: unrecognized prompt error", "trace_len", len(trace))
	return models.ReasonExpoGeneric
}

// DecodePromptErrorWithFallback decodes rawError and substitutes fallback for
// the generic result, so callers with scenario context can report something
// more specific than EXPO.GENERIC.
func DecodePromptErrorWithFallback(rawError any, fallback models.Reason) models.Reason {
	reason := DecodePromptError(rawError)
	if reason == models.ReasonExpoGeneric && fallback != "" {
		return fallback
	}
	return reason
}
