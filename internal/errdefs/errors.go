// Package errdefs defines the error taxonomy shared by the sampler, the
// algorithm registry, the store and the CLI.
//
// Each category is a distinct pointer type so callers can branch with
// errors.As (or the Is* helpers) through any amount of fmt.Errorf wrapping.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error category on the CLI error channel.
type Code string

const (
	// CodeValidation: unknown strategy/method, out-of-range size, malformed override.
	CodeValidation Code = "VALIDATION"

	// CodeAlgorithmUnavailable: every configured alternate for a method failed.
	CodeAlgorithmUnavailable Code = "ALGORITHM_UNAVAILABLE"

	// CodeNotFound: read of a nonexistent config.
	CodeNotFound Code = "NOT_FOUND"

	// CodeStorageIntegrity: referential violation at write time.
	CodeStorageIntegrity Code = "STORAGE_INTEGRITY"
)

// ValidationError reports input rejected before any computation or write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", CodeValidation, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", CodeValidation, e.Message)
}

// Validation creates a ValidationError with a formatted message.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CauseKind distinguishes a back-end that could not be loaded from one that
// loaded but failed while running.
type CauseKind string

const (
	CauseUnavailable CauseKind = "unavailable"
	CauseFailed      CauseKind = "failed"
)

// Cause is one failed attempt in a fallback chain.
type Cause struct {
	Backend string
	Kind    CauseKind
	Err     error
}

func (c Cause) Error() string {
	return fmt.Sprintf("%s %s: %v", c.Backend, c.Kind, c.Err)
}

func (c Cause) Unwrap() error { return c.Err }

// AlgorithmUnavailableError is returned when every alternate configured for
// a method failed or was unavailable. Causes holds one entry per attempted
// alternate, in attempt order.
type AlgorithmUnavailableError struct {
	Method string
	Causes []Cause
}

func (e *AlgorithmUnavailableError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Error()
	}
	return fmt.Sprintf("%s: method %q exhausted %d alternate(s): %s",
		CodeAlgorithmUnavailable, e.Method, len(e.Causes), strings.Join(parts, "; "))
}

// Unwrap exposes the underlying causes to errors.Is/As.
func (e *AlgorithmUnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Causes))
	for i, c := range e.Causes {
		errs[i] = c
	}
	return errs
}

// NotFoundError reports a read of a nonexistent entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %s not found", CodeNotFound, e.Entity, e.Key)
}

// StorageIntegrityError reports a write rejected by a referential or
// cardinality constraint. Nothing from the rejected call is persisted.
type StorageIntegrityError struct {
	Ref     string // the referencing column, e.g. "filename" or "config_id"
	Value   string
	Message string
	Err     error
}

func (e *StorageIntegrityError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "constraint violated"
	}
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s=%s: %s", CodeStorageIntegrity, e.Ref, e.Value, msg)
	}
	return fmt.Sprintf("%s: %s", CodeStorageIntegrity, msg)
}

func (e *StorageIntegrityError) Unwrap() error { return e.Err }

// IsValidation returns true if err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAlgorithmUnavailable returns true if err wraps an AlgorithmUnavailableError.
func IsAlgorithmUnavailable(err error) bool {
	var ae *AlgorithmUnavailableError
	return errors.As(err, &ae)
}

// IsNotFound returns true if err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsStorageIntegrity returns true if err wraps a StorageIntegrityError.
func IsStorageIntegrity(err error) bool {
	var se *StorageIntegrityError
	return errors.As(err, &se)
}

// CodeOf returns the category code of err, or "" for uncategorized errors.
func CodeOf(err error) Code {
	switch {
	case IsValidation(err):
		return CodeValidation
	case IsAlgorithmUnavailable(err):
		return CodeAlgorithmUnavailable
	case IsNotFound(err):
		return CodeNotFound
	case IsStorageIntegrity(err):
		return CodeStorageIntegrity
	}
	return ""
}
