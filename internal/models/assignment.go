package models

import (
	"time"

	"github.com/google/uuid"
)

// ExerciseModelAssignment binds a model to an exercise under a blind name.
// For a given exercise each model has exactly one blind name, blind names
// are unique within the exercise, and Position records insertion order.
type ExerciseModelAssignment struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	ExerciseID          uuid.UUID `db:"exercise_id" json:"exercise_id"`
	ModelID             uuid.UUID `db:"model_id" json:"model_id"`
	BlindName           string    `db:"blind_name" json:"blind_name"`
	Position            int       `db:"position" json:"position"`
	TemperatureOverride *float64  `db:"temperature_override" json:"temperature_override,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// AssignedModel is an assignment joined with the live model config row.
// The real model name and provider are deliberately excluded from JSON;
// participant-facing responses are built from the blind name only.
type AssignedModel struct {
	ExerciseModelAssignment

	ModelName     string `db:"model_name" json:"-"`
	Provider      string `db:"provider" json:"-"`
	SupportsImage bool   `db:"supports_image" json:"supports_image"`
	IsActive      bool   `db:"is_active" json:"-"`
}
