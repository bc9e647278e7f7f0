// Package services holds the workflow, execution and integration use cases shared by the binaries.
package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrEmptyOwnerID         = errors.New("owner ID cannot be empty")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrIntegrationConfig    = errors.New("integration config cannot be empty")

	ErrWorkflowDisabled = errors.New("workflow is disabled")

	ErrEncryptionUnavailable = errors.New("credential encryption is not configured")
)

// ErrorKind classifies a service error for callers that translate it, such as the HTTP layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindUnavailable
)

var errorKinds = map[error]ErrorKind{
	ErrInvalidRequest:        KindValidation,
	ErrEmptyOwnerID:          KindValidation,
	ErrWorkflowNil:           KindValidation,
	ErrWorkflowNameRequired:  KindValidation,
	ErrIntegrationConfig:     KindValidation,
	ErrWorkflowDisabled:      KindConflict,
	ErrEncryptionUnavailable: KindUnavailable,
}

// KindOf returns the kind of the first sentinel found in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	for sentinel, kind := range errorKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindInternal
}

func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}

func IsConflictError(err error) bool {
	return KindOf(err) == KindConflict
}

// ServiceError attaches the failing operation and a stable code to a sentinel.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost ServiceError in err's chain, or fallback.
func CodeOf(err error, fallback string) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	return fallback
}
