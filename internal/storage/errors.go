package storage

import "errors"

var (
	// ErrModelNotFound is returned when a model config is not found
	ErrModelNotFound = errors.New("model not found")

	// ErrExerciseNotFound is returned when an exercise is not found
	ErrExerciseNotFound = errors.New("exercise not found")

	// ErrAssignmentNotFound is returned when no blind assignment exists
	// for the requested exercise/label or exercise/model pair
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrInteractionNotFound is returned when an interaction is not found
	ErrInteractionNotFound = errors.New("interaction not found")
)
