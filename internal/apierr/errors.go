// Package apierr defines the transport-independent error kinds the core
// raises. HTTP status mapping happens at the edge (internal/httpapi); no
// other package imports net/http to report these.
package apierr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuth             Kind = "auth"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindPathEscape       Kind = "path_escape"
	KindSensitivePath    Kind = "sensitive_path"
	KindToolDisabled     Kind = "tool_disabled"
	KindToolTimeout      Kind = "tool_timeout"
	KindToolFailure      Kind = "tool_failure"
	KindProviderFailure  Kind = "provider_failure"
	KindProviderTimeout  Kind = "provider_timeout"
	KindConflict         Kind = "conflict"
	KindCancelled        Kind = "cancelled"
	KindRateLimited      Kind = "rate_limited"
)

// Error is the concrete error type carried through the core. Kind is
// matched with errors.Is against a sentinel of the same Kind; Cause, if
// present, is unwrapped by errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apierr.New(KindNotFound, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns a zero-message error of the given kind, suitable as the
// target of errors.Is.
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
