// Package shared contains the error taxonomy used across the domain, the
// application layer and the adapters. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrAlreadyProcessed = errors.New("already processed")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConflict       = errors.New("document changed concurrently")
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// Taxonomy
	ErrTransientExternal = errors.New("transient external failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrConfiguration     = errors.New("configuration error")
	ErrJobCrash          = errors.New("job crashed")
	ErrConnectionFailure = errors.New("connection failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "progression", "quest", "platform"
	Op      string // Operation that failed, e.g. "AddRole"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both Kind and Err.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ConnectionCategory classifies a failed or ended gateway session.
type ConnectionCategory int

const (
	// CategoryUnexpected is any failure that is neither HTTP nor rate limiting.
	CategoryUnexpected ConnectionCategory = iota
	// CategoryRateLimited is an HTTP 429 or a platform rate-limit signal.
	CategoryRateLimited
	// CategoryHTTP is any other HTTP or network failure.
	CategoryHTTP
	// CategoryClosed is a session that ended without error.
	CategoryClosed
)

// String returns the category name used in logs.
func (c ConnectionCategory) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryHTTP:
		return "http"
	case CategoryClosed:
		return "closed"
	default:
		return "unexpected"
	}
}

// ConnectionError is a classified gateway failure. It is never fatal.
type ConnectionError struct {
	Category ConnectionCategory
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection %s", e.Category)
	}
	return fmt.Sprintf("connection %s: %v", e.Category, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches ErrConnectionFailure, and ErrRateLimited for the rate-limited category.
func (e *ConnectionError) Is(target error) bool {
	if target == ErrConnectionFailure {
		return true
	}
	return target == ErrRateLimited && e.Category == CategoryRateLimited
}

// Platform errors
var (
	ErrPlatformForbidden   = NewDomainError("platform", "Request", ErrForbidden, "missing permission")
	ErrPlatformRateLimited = NewDomainError("platform", "Request", ErrRateLimited, "platform rate limit exceeded")
	ErrMemberNotFound      = NewDomainError("platform", "FindMember", ErrNotFound, "member not found")
	ErrChannelNotFound     = NewDomainError("platform", "FindChannel", ErrNotFound, "channel not found")
)

// Quest errors
var (
	ErrQuestNotFound = NewDomainError("quest", "Find", ErrNotFound, "hidden quest not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsTransientExternal checks if the error came from the platform or the store
// and should be logged and skipped for this cycle.
func IsTransientExternal(err error) bool {
	return errors.Is(err, ErrTransientExternal) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrForbidden)
}
