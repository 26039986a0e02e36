package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: empty cart, missing location,
// an unverified profile, inconsistent status arguments.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Kind string // "order", "driver", "profile", "store", "product"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// InvalidTransitionError reports an illegal order-status move.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

// ConflictError reports a violated dispatch precondition, e.g. assigning a
// driver that is already busy or an order that already left PREPARING.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// Conflictf builds a ConflictError with a formatted reason.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
