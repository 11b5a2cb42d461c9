package model

import (
	"errors"
	"fmt"
)

var (
	// Request errors
	ErrValidation    = errors.New("validation failure")
	ErrNotFound      = errors.New("record not found")
	ErrLimitExceeded = errors.New("limit exceeded")

	// Trash ledger state machine errors
	ErrAlreadyClearing   = errors.New("trash entry already clearing")
	ErrNotClearable      = errors.New("trash entry not clearable")
	ErrTooManyAttempts   = errors.New("trash entry exceeded clear attempts")
	ErrNoAttachmentPoint = errors.New("no attachment point for restore")
	ErrAlreadyTrashed    = errors.New("record already removed")
	ErrTrashNotFound     = errors.New("trash entry not found")

	// Consistency errors
	ErrCascadeFailure         = errors.New("cascade failure")
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// CascadeError wraps the error that aborted an apply, discard or clear cascade.
type CascadeError struct {
	Op     string
	Target Ref
	Err    error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

func (e *CascadeError) Is(target error) bool {
	return target == ErrCascadeFailure
}

// NewCascadeError keeps the innermost cascade error when failures nest.
func NewCascadeError(op string, target Ref, err error) error {
	var existing *CascadeError
	if errors.As(err, &existing) {
		return err
	}
	return &CascadeError{Op: op, Target: target, Err: err}
}
