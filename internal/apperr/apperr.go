package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to surface,
// retry, or swallow it without string-matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks bad input or a referential-integrity violation.
	// Never retried, surfaced to the caller.
	KindValidation
	// KindNotFound marks a missing record or artifact. Never retried.
	KindNotFound
	// KindStoreUnavailable marks a transient infrastructure failure.
	// Retrying is the caller's decision, never automatic.
	KindStoreUnavailable
	// KindRenderFailed marks a renderer that could not produce bytes.
	KindRenderFailed
	// KindCompensationFailed marks a rollback/cleanup step that itself
	// failed. Always logged, never raised over the original error.
	KindCompensationFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindRenderFailed:
		return "render_failed"
	case KindCompensationFailed:
		return "compensation_failed"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside a wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func StoreUnavailable(msg string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Msg: msg, Err: err}
}

func RenderFailed(msg string, err error) error {
	return &Error{Kind: KindRenderFailed, Msg: msg, Err: err}
}

func CompensationFailed(msg string, err error) error {
	return &Error{Kind: KindCompensationFailed, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func IsStoreUnavailable(err error) bool { return KindOf(err) == KindStoreUnavailable }

func IsRenderFailed(err error) bool { return KindOf(err) == KindRenderFailed }
