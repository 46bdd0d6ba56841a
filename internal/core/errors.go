// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// OAuth handshake errors
	ErrInvalidCallback       = &Error{Code: "INVALID_CALLBACK", Message: "oauth callback is missing required fields"}
	ErrStateMismatch         = &Error{Code: "STATE_MISMATCH", Message: "oauth state does not belong to this user"}
	ErrStateExpiredOrMissing = &Error{Code: "STATE_EXPIRED_OR_MISSING", Message: "oauth state expired or already consumed"}

	// Vendor errors
	ErrVendorRejected    = &Error{Code: "VENDOR_REJECTED", Message: "vendor declined the request"}
	ErrVendorUnavailable = &Error{Code: "VENDOR_UNAVAILABLE", Message: "vendor unreachable or timed out"}

	// Connection errors
	ErrTokensUnavailable   = &Error{Code: "TOKENS_UNAVAILABLE", Message: "no tokens cached for connection, reconnect required"}
	ErrUnsupportedBroker   = &Error{Code: "UNSUPPORTED_BROKER", Message: "no adapter registered for broker"}
	ErrConnectionNotFound  = &Error{Code: "CONNECTION_NOT_FOUND", Message: "connection not found"}
	ErrNoPendingConnection = &Error{Code: "NO_PENDING_CONNECTION", Message: "no pending connection for this broker"}
	ErrNoActiveConnection  = &Error{Code: "NO_ACTIVE_CONNECTION", Message: "no active connection for this broker"}
	ErrPositionNotFound    = &Error{Code: "POSITION_NOT_FOUND", Message: "symbol not held in any connected account"}

	// Infrastructure errors
	ErrCacheUnavailable = &Error{Code: "CACHE_UNAVAILABLE", Message: "token cache not configured or unreachable"}
	ErrStoreFailed      = &Error{Code: "STORE_FAILED", Message: "persistence operation failed"}

	// Credential errors
	ErrCredentialsMissing = &Error{Code: "CREDENTIALS_MISSING", Message: "vendor credentials not configured"}

	// Request errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
	ErrUserRequired = &Error{Code: "USER_REQUIRED", Message: "missing or invalid user id"}
	ErrBadRequest   = &Error{Code: "BAD_REQUEST", Message: "malformed request"}

	// Configuration errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration value out of range"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
