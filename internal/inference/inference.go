package inference

import (
	"context"
	"errors"
	"fmt"
)

// Client sends an encoded request payload to a model and returns the raw
// response body.
type Client interface {
	Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error)
}

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrProfileRequired = errors.New("inference profile required")
	ErrNotFound        = errors.New("model not found")
	ErrTimeout         = errors.New("inference timeout")
	ErrThrottled       = errors.New("inference throttled")
	ErrUnavailable     = errors.New("inference unavailable")
)

// Error carries the provider's message alongside one of the sentinel kinds.
type Error struct {
	Kind    error
	ModelID string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.ModelID, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.ModelID, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, modelID, message string) *Error {
	return &Error{Kind: kind, ModelID: modelID, Message: message}
}

// KindOf returns a stable label for err, used in logs and audit details.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrProfileRequired):
		return "profile_required"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}

// Disabled is used when no inference backend is configured. Every call
// fails with ErrUnavailable so audits take the mock path.
type Disabled struct{}

func (Disabled) Invoke(_ context.Context, modelID string, _ []byte) ([]byte, error) {
	return nil, newError(ErrUnavailable, modelID, "inference disabled")
}
