// Package xerrors classifies errors that cross an exchange-adapter or
// execution boundary into a normalized taxonomy, so callers can decide
// retry vs. surface vs. rollback without string matching venue-specific
// messages.
package xerrors

import "fmt"

// Kind is a normalized, venue-independent error classification.
type Kind string

const (
	KindTransientNetwork      Kind = "transient_network"
	KindRateLimited           Kind = "rate_limited"
	KindAuth                  Kind = "auth"
	KindInsufficientBalance   Kind = "insufficient_balance"
	KindNotionalTooSmall      Kind = "notional_too_small"
	KindPrecision             Kind = "precision"
	KindInvalidSymbol         Kind = "invalid_symbol"
	KindDataValidation        Kind = "data_validation"
	KindReconciliationConflict Kind = "reconciliation_conflict"
	KindInternal              Kind = "internal"
	KindUnknown               Kind = "unknown"

	// Execution-specific kinds, not part of the per-venue table but raised
	// directly by the Execution Engine.
	KindMissingCredentials        Kind = "missing_credentials"
	KindConnectionFailed          Kind = "connection_failed"
	KindRequiresManualIntervention Kind = "requires_manual_intervention"
)

// Retryable reports whether an error of this kind should be retried by the
// adapter's backoff wrapper rather than surfaced to the caller.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}

// ClassifiedError wraps an underlying error with a normalized Kind.
type ClassifiedError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// New builds a ClassifiedError.
func New(kind Kind, message string, cause error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message, Err: cause}
}

// ClassifyHTTPStatus maps a generic HTTP status code to a Kind when a
// venue's specific error-code table (see exchange.VenueSpec) doesn't
// recognize the response body.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindTransientNetwork
	case status >= 400:
		return KindUnknown
	default:
		return KindUnknown
	}
}
