package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrValidation matches any ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// NotFoundError reports a flow, block, connection or parameter id that is
// absent.
type NotFoundError struct {
	Entity string // "flow", "block", "connection", "parameter"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports a rejected mutation: unknown template, missing
// required parameter or a value of the wrong type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
