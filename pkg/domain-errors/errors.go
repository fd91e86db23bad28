// Package domainerrors defines the coded error type that crosses the pipeline
// boundary. Services attach a stable machine-readable code; the HTTP layer maps
// codes to status lines without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeInvalidInput covers non-retryable input problems: no approved
	// photo, undecodable photo bytes, unknown subject field shapes.
	CodeInvalidInput Code = "invalid_input"
	// CodeStorage covers blob backend failures that survived retry.
	CodeStorage Code = "storage_unavailable"
	// CodeInvalidToken is returned when a verification token does not match.
	CodeInvalidToken Code = "invalid_token"
	// CodeRevoked is returned when verifying a revoked card.
	CodeRevoked Code = "revoked"
	// CodeExpired is returned when verifying a card past its expiry.
	CodeExpired Code = "expired"
	// CodeUnavailable means the artifact could not be produced or healed.
	CodeUnavailable Code = "unavailable"
	// CodeNotFound means the referenced card or subject does not exist.
	CodeNotFound Code = "not_found"
	// CodeBadRequest covers malformed request payloads at the transport edge.
	CodeBadRequest Code = "bad_request"
	// CodeForbidden covers rejected admin credentials.
	CodeForbidden Code = "forbidden"
	// CodeInternal is the fallback for unexpected failures. Its description
	// is never echoed to callers.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code        Code
	Description string
	wrapped     error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a domain error with a code and human-readable description.
func New(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Wrap creates a domain error that preserves the underlying cause for
// errors.Is/As chains while presenting a stable code to callers.
func Wrap(code Code, description string, err error) *Error {
	return &Error{Code: code, Description: description, wrapped: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
