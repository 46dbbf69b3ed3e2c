package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound indicates that a run id does not exist in the tracking store
	ErrRunNotFound = errors.New("run not found")

	// ErrExperimentNotFound indicates that an experiment lookup came up empty
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrNoChildren indicates that a parent run has no child runs
	ErrNoChildren = errors.New("no child runs found")

	// ErrUnknownDatasetType indicates that no builder is registered for a dataset type
	ErrUnknownDatasetType = errors.New("unknown dataset type")

	// ErrActiveRunConflict indicates that an explicit run id clashes with an open run
	ErrActiveRunConflict = errors.New("conflicting active run")

	// ErrMissingRunID indicates that an operation needs a run id and none was resolved
	ErrMissingRunID = errors.New("missing run id")

	// ErrMissingCredential indicates that a required credential or option key is absent
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnknownConnection indicates that a connection keyword is not registered
	ErrUnknownConnection = errors.New("unknown connection keyword")

	// ErrNotConnected indicates that the tracking store binding has no live connection
	ErrNotConnected = errors.New("not connected to tracking store")

	// ErrArtifactNotFound indicates that an artifact path has no stored payload
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Error represents a structured SDK error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new SDK error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsRunNotFound checks if an error indicates a missing run
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNoChildren checks if an error indicates a childless parent run
func IsNoChildren(err error) bool {
	return errors.Is(err, ErrNoChildren)
}
