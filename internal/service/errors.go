package service

import (
	"errors"
	"fmt"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

var (
	// ErrStateViolation is returned when an operation is not allowed in the
	// sheet's current lifecycle state.
	ErrStateViolation = errors.New("state violation")

	// ErrValidationFailed is returned by Publish when the sheet has blocking
	// validation errors.
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidInput is returned when a mutation payload is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailure wraps every error coming out of the backing store.
	ErrStoreFailure = errors.New("store failure")
)

// StateError describes a rejected lifecycle transition or mutation.
type StateError struct {
	Op      string
	SheetID string
	Status  models.SheetStatus
}

func (e *StateError) Error() string {
	if e.SheetID == "" {
		return fmt.Sprintf("%s: %s", e.Op, ErrStateViolation)
	}
	return fmt.Sprintf("%s: sheet %s is %s: %s", e.Op, e.SheetID, e.Status, ErrStateViolation)
}

func (e *StateError) Unwrap() error { return ErrStateViolation }

// ValidationError carries the validation report that blocked a publish.
type ValidationError struct {
	Result models.ValidationResult
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return ErrValidationFailed.Error()
	}
	return fmt.Sprintf("%s: %d error(s), first: %s", ErrValidationFailed, len(e.Result.Errors), e.Result.Errors[0].Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// InputError reports a malformed payload.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, msg)
}

func (e *InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// StoreError wraps a backend error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreFailure, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreFailure, e.Err} }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// passThrough reports whether err is already classified.
func passThrough(err error) bool {
	return errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, ErrStateViolation) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrStoreFailure)
}
