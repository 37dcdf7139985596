package dispatch

import (
	"errors"
	"fmt"
)

// MaskedProvider is the opaque provider sentinel in every
// participant-facing response. Real vendor names never appear.
const MaskedProvider = "hidden"

// ValidationError means the request itself is malformed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
	// ErrModelInactive means the target model exists but is deactivated
	ErrModelInactive = errors.New("model is not active")

	// ErrNotAssigned means the model is not assigned to the exercise.
	// This is an authorization boundary: a model existing in the system
	// does not make it usable in every exercise.
	ErrNotAssigned = errors.New("model is not assigned to this exercise")
)
