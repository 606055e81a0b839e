package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by clients, consensus, signals and the orchestrator
var (
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrNoDataAvailable     = errors.New("no data available")
	ErrInsufficientHistory = errors.New("insufficient history")
)

// SourceError records a failed call to one provider. Kind is one of the
// sentinel errors above and is what errors.Is matches against.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Kind)
}

// Unwrap exposes both the kind and the underlying cause
func (e *SourceError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewSourceError wraps err as a failure of the given kind
func NewSourceError(source string, kind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// ErrorKind returns the taxonomy name for err, or "error" when it is not
// one of the known kinds.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, ErrNoDataAvailable):
		return "no_data"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrSourceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
