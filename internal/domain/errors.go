package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category sentinels. HTTPError and DomainError unwrap to one of these so
// callers can branch with errors.Is.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("backend error")
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
)

// Sentinel errors for the client layer.
var (
	ErrTransport     = fmt.Errorf("transport failure")
	ErrStreamClosed  = fmt.Errorf("stream already terminated")
	ErrCallback      = fmt.Errorf("stream callback failed")
	ErrNotConfigured = fmt.Errorf("client not configured")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrDecryption    = fmt.Errorf("decryption failed")
	ErrNoToken       = fmt.Errorf("no stored credentials")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "backend.ChatStream")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// HTTPError is a non-success response from the backend. Detail carries the
// server-provided message when the body was a JSON error document.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("http status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("http status %d", e.Status)
}

// Unwrap maps the status code onto a category sentinel.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrAuthInvalid
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimit
	case e.Status >= 500:
		return ErrProviderError
	default:
		return nil
	}
}

// IsUnauthorized reports whether err carries a 401 response.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// The client never retries on its own; this is exposed for callers.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderError) || errors.Is(err, ErrTransport)
}

// ErrorCode is a machine-parseable error category for CLI exit reporting and logs.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "BACKEND_ERROR"
	CodeRateLimit     ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid   ErrorCode = "AUTH_INVALID"
	CodeTransport     ErrorCode = "TRANSPORT"
	CodeCallback      ErrorCode = "CALLBACK"
	CodeNotConfigured ErrorCode = "NOT_CONFIGURED"
	CodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	CodeDecryption    ErrorCode = "DECRYPTION"
	CodeNoToken       ErrorCode = "NO_TOKEN"
)

// errorCodes is ordered: the first matching sentinel wins.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrNoToken, CodeNoToken},
	{ErrRateLimit, CodeRateLimit},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrProviderError, CodeProviderError},
	{ErrCallback, CodeCallback},
	{ErrTransport, CodeTransport},
	{ErrNotConfigured, CodeNotConfigured},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// DetailFromBody extracts the "detail" member of a JSON error document.
// FastAPI validation errors carry a list of {"msg": ...} objects; those are
// joined. Returns "" when body is not such a document.
func DetailFromBody(detail any) string {
	switch v := detail.(type) {
	case string:
		return v
	case []any:
		msgs := make([]string, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					msgs = append(msgs, msg)
				}
			}
		}
		return strings.Join(msgs, "; ")
	default:
		return ""
	}
}
