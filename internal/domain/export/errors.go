package export

import (
	"errors"
	"fmt"

	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes surfaced in task error details and API responses
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeAlreadyExported       = "ALREADY_EXPORTED"
	CodeInfrastructureFailure = "INFRASTRUCTURE_FAILURE"
	CodeNotExported           = "NOT_EXPORTED"
	CodeForbidden             = "FORBIDDEN"
)

// CodedError is an error with a stable code
type CodedError interface {
	error
	Code() string
}

// CodeOf returns the code of err, or CodeInfrastructureFailure for uncoded errors
func CodeOf(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInfrastructureFailure
}

// ValidationError rejects a malformed request or document
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Code returns the error code
func (e *ValidationError) Code() string { return CodeValidationFailed }

// AlreadyExportedError is recorded when a document already carries an export marker
type AlreadyExportedError struct {
	DocumentID  uuid.UUID
	DocumentRef string
}

func (e *AlreadyExportedError) Error() string {
	return fmt.Sprintf("document %s is already exported", e.DocumentRef)
}

// Code returns the error code
func (e *AlreadyExportedError) Code() string { return CodeAlreadyExported }

// InfrastructureError fails the whole task
type InfrastructureError struct {
	Op  string
	Err error
}

// NewInfrastructureError wraps err as a task-level fault
func NewInfrastructureError(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *InfrastructureError) Unwrap() error { return e.Err }

// Code returns the error code
func (e *InfrastructureError) Code() string { return CodeInfrastructureFailure }

// CancellationNotFoundError is counted when a targeted document has no marker
type CancellationNotFoundError struct {
	DocumentID uuid.UUID
}

func (e *CancellationNotFoundError) Error() string {
	return "not exported"
}

// Code returns the error code
func (e *CancellationNotFoundError) Code() string { return CodeNotExported }

// ForbiddenError is recorded when the actor may not touch a document
type ForbiddenError struct {
	DocumentID uuid.UUID
}

func (e *ForbiddenError) Error() string {
	return "forbidden"
}

// Code returns the error code
func (e *ForbiddenError) Code() string { return CodeForbidden }
