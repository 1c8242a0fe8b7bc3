package status

import (
	"errors"
	"fmt"
)

// Code is the closed set of status codes that cross the FFI boundary. The
// numeric values are part of the ABI and must never be reordered.
type Code int32

const (
	CodeOk           Code = 0
	CodeNoConsent    Code = 1
	CodePolicyDenied Code = 2
	CodeModelMissing Code = 3
	CodeInvalidInput Code = 4
	CodeInternal     Code = 5
)

// String returns the wire label for the code.
func (c Code) String() string {
	switch c {
	case CodeOk:
		return "ok"
	case CodeNoConsent:
		return "no_consent"
	case CodePolicyDenied:
		return "policy_denied"
	case CodeModelMissing:
		return "model_missing"
	case CodeInvalidInput:
		return "invalid_input"
	case CodeInternal:
		return "internal"
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Error is the canonical coded error for the core. Reason is a stable
// machine-parsable snake_case token; Msg carries operator-facing detail that
// never crosses the boundary for internal failures.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two coded errors on code alone so callers can test against the
// bare sentinels below without caring about the reason token.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && (t.Reason == "" || t.Reason == e.Reason)
}

// New builds a coded error with a stable reason token.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Wrap attaches a cause for server-side logs while keeping the code and
// reason as the only caller-visible surface.
func Wrap(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, cause: cause}
}

// NoConsent marks a failed consent check. Expected and frequent; logged, not
// alarmed.
func NoConsent(reason string) *Error { return New(CodeNoConsent, reason) }

// PolicyDenied marks a policy gate refusal.
func PolicyDenied(reason string) *Error { return New(CodePolicyDenied, reason) }

// ModelMissing marks an absent model artefact; retryable after activation.
func ModelMissing(reason string) *Error { return New(CodeModelMissing, reason) }

// Invalid marks rejected input. Always fail closed before domain logic runs.
func Invalid(reason string) *Error { return New(CodeInvalidInput, reason) }

// Internal marks timeouts, signing failures and storage faults. Surfaced to
// callers as an opaque code only.
func Internal(reason string) *Error { return New(CodeInternal, reason) }

// CodeOf extracts the status code from any error, defaulting to Internal so
// unclassified failures never leak as success.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOk
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf extracts the stable reason token, or "internal" for unclassified
// errors.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal"
}
