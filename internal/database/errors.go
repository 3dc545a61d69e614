package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned by operations that require an existing record.
	ErrNotFound = errors.New("record not found")
	// ErrConstraintViolation matches any uniqueness, required-field or enum failure.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrPersistence matches storage failures that are not constraint violations.
	ErrPersistence = errors.New("persistence failure")
)

// integrityConstraintClass is the SQLSTATE class for integrity constraint violations.
const integrityConstraintClass = "23"

// ConstraintError reports which constraint rejected a write.
type ConstraintError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConstraintViolation)
	}
	return fmt.Sprintf("%s: %v on %s", e.Op, ErrConstraintViolation, e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConstraintViolation) hold for every ConstraintError.
func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// classify converts a driver error into one of the package error kinds.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == integrityConstraintClass {
		return &ConstraintError{Op: op, Constraint: pqErr.Constraint, Err: err}
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrPersistence, err)
}

func constraintf(op, constraint string) error {
	return &ConstraintError{Op: op, Constraint: constraint}
}
