package costing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing rows and rows owned by another organization.
	ErrNotFound = errors.New("not found")
	// ErrReferentialConflict is returned when a delete is blocked by live edges.
	ErrReferentialConflict = errors.New("referential conflict")
	// ErrConsistencyFailure means the atomic recompute could not commit; retry the whole mutation.
	ErrConsistencyFailure = errors.New("consistency failure")
)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound wraps ErrNotFound with the entity kind.
func NotFound(kind EntityKind) error {
	return fmt.Errorf("%s %w", kind, ErrNotFound)
}

// ReferentialConflictError lists the edges that still point at an entity.
type ReferentialConflictError struct {
	Kind        EntityKind
	ID          string
	RecipeRefs  int64
	ProductRefs int64
}

func (e *ReferentialConflictError) Error() string {
	return fmt.Sprintf("%s %s is still used by %d recipe(s) and %d product(s)", e.Kind, e.ID, e.RecipeRefs, e.ProductRefs)
}

func (e *ReferentialConflictError) Is(target error) bool {
	return target == ErrReferentialConflict
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
