package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidInput is the only error the analysis layer returns to callers.
	ErrInvalidInput = errors.New("invalid analysis input")

	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrRateLimited           = errors.New("provider rate limit exceeded")
	ErrProviderTimeout       = errors.New("provider timed out")
	ErrProviderTransport     = errors.New("provider transport failure")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrOfflineUnavailable    = errors.New("offline analysis unavailable")
)

// InvalidInputError describes which part of a request failed validation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// ProviderError is a failure reported by or about a single provider. Kind is
// one of the provider sentinels above; errors.Is matches against it.
type ProviderError struct {
	ProviderID string
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.ProviderID, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.ProviderID, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewProviderError(providerID string, kind, err error) *ProviderError {
	return &ProviderError{ProviderID: providerID, Kind: kind, Err: err}
}

// ClassifyProviderError maps an arbitrary adapter error onto the provider
// taxonomy. Deadline expiry and network timeouts count as timeouts; anything
// else is a transport failure unless it is already classified.
func ClassifyProviderError(providerID string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(providerID, ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(providerID, ErrProviderTimeout, err)
	}
	return NewProviderError(providerID, ErrProviderTransport, err)
}

// OutcomeForError converts a provider error into the attempt outcome label.
func OutcomeForError(err error) string {
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrProviderTimeout):
		return OutcomeTimeout
	default:
		return OutcomeTransportError
	}
}
