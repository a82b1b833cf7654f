// Package core hosts the shared Core context (owned services, no ambient
// globals) and the error kinds every subsystem boundary returns.
package core

import (
	"errors"
	"fmt"
)

// Kind distinguishes the recoverable error categories a boundary can return.
type Kind int

const (
	KindProtocol Kind = iota
	KindIO
	KindHashMismatch
	KindShare
	KindValidationReject
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindHashMismatch:
		return "hash_mismatch"
	case KindShare:
		return "share"
	case KindValidationReject:
		return "validation_reject"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the sum-typed boundary error. Reason carries a short machine
// code (e.g. "DUPLICATE_FILE", "FILE_NOT_AVAILABLE") for callers that need
// to branch on it without string matching.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error of the given kind with a reason code and message.
func NewError(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Common reason codes referenced by the Queue & Share contracts.
const (
	ReasonDuplicateFile     = "DUPLICATE_FILE"
	ReasonInvalidTarget     = "INVALID_TARGET"
	ReasonHookRejected      = "HOOK_REJECTED"
	ReasonFileNotAvailable  = "FILE_NOT_AVAILABLE"
	ReasonNoAccess          = "NO_ACCESS"
	ReasonNoTree            = "NO_TREE"
	ReasonTTHInconsistency  = "TTH_INCONSISTENCY"
	ReasonBadTree           = "BAD_TREE"
	ReasonSlowUser          = "SLOW_USER"
)

// ADC protocol error codes referenced by ShareError responses.
const (
	AdcErrorFileNotAvailable = 52
	AdcErrorNoAccess         = 53
)
