// Package hodeierr defines the error taxonomy shared by every core package.
//
// Errors are plain Go values implementing error, wrapping an underlying
// cause where one exists. Callers compare kinds with errors.Is against the
// exported sentinel kinds, or use errors.As to recover the concrete type for
// its structured fields (e.g. QuotaExceededError.Violations).
package hodeierr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindBusinessRule Kind = "business_rule"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindInsufficientResources Kind = "insufficient_resources"
	KindProvisioning Kind = "provisioning_error"
	KindRepository Kind = "repository_error"
	KindWorkerLost Kind = "worker_lost"
	KindProtocol Kind = "protocol_error"
	KindCancelled Kind = "cancelled"
)

// Error is the common shape for every taxonomy member: a kind, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Message string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, hodeierr.New(kind, "")) match by kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a taxonomy error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a taxonomy error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(entity, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

func Conflict(format string, args...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func BusinessRule(format string, args...interface{}) *Error {
	return New(KindBusinessRule, fmt.Sprintf(format, args...))
}

// Violation is one resource that breached its pool quota, used by
// QuotaExceededError and by the reporting-only Violations()/Alerts() calls
// in pkg/quota.
type Violation struct {
	Resource string
	Limit float64
	Current float64
	ExcessPct float64
}

// QuotaExceededError carries the full violations list, per spec.
type QuotaExceededError struct {
	Violations []Violation
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota_exceeded: %d resource(s) over limit", len(e.Violations))
}

func (e *QuotaExceededError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == KindQuotaExceeded
	}
	var qe *QuotaExceededError
	return errors.As(target, &qe)
}

func InsufficientResources(format string, args...interface{}) *Error {
	return New(KindInsufficientResources, fmt.Sprintf(format, args...))
}

// ProvisioningErrorCode is the closed enum
type ProvisioningErrorCode string

const (
	ProvisioningInvalidSpec ProvisioningErrorCode = "invalid_spec"
	ProvisioningFailed ProvisioningErrorCode = "provisioning_failed"
	ProvisioningTimeout ProvisioningErrorCode = "timeout"
	ProvisioningQuotaExceeded ProvisioningErrorCode = "quota_exceeded"
	ProvisioningNotFound ProvisioningErrorCode = "not_found"
)

// ProvisioningError is returned by every pkg/provider adapter method.
type ProvisioningError struct {
	Code ProvisioningErrorCode
	Message string
	Cause error
}

func (e *ProvisioningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provisioning_error(%s): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("provisioning_error(%s): %s", e.Code, e.Message)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

func (e *ProvisioningError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == KindProvisioning
	}
	var pe *ProvisioningError
	return errors.As(target, &pe)
}

func NewProvisioningError(code ProvisioningErrorCode, message string, cause error) *ProvisioningError {
	return &ProvisioningError{Code: code, Message: message, Cause: cause}
}

// RepositoryError wraps persistence-layer failures (OperationFailed in the
// spec's vocabulary).
type RepositoryError struct {
	Operation string
	Cause error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository_error: operation %q failed: %v", e.Operation, e.Cause)
}

func (e *RepositoryError) Unwrap() error { return e.Cause }

func (e *RepositoryError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == KindRepository
	}
	var re *RepositoryError
	return errors.As(target, &re)
}

func OperationFailed(operation string, cause error) *RepositoryError {
	return &RepositoryError{Operation: operation, Cause: cause}
}

func WorkerLost(workerID string) *Error {
	return New(KindWorkerLost, fmt.Sprintf("worker %q lost (heartbeat timeout or disconnect)", workerID))
}

func Protocol(format string, args...interface{}) *Error {
	return New(KindProtocol, fmt.Sprintf(format, args...))
}

func Cancelled(reason string) *Error {
	return New(KindCancelled, reason)
}

// Retryable reports whether the engine is allowed to automatically retry an
// execution that failed with err.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, New(KindValidation, "")):
		return false
	case errors.Is(err, New(KindConflict, "")):
		return false
	case errors.Is(err, New(KindBusinessRule, "")):
		return false
	case errors.Is(err, New(KindWorkerLost, "")):
		return true
	default:
		return false
	}
}
