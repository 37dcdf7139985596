package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction kinds.
const (
	InteractionText  = "text"
	InteractionImage = "image"
)

// Interaction is one logged prompt/response exchange. Rows are written
// once after a generation attempt and never updated by the dispatch path.
type Interaction struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ExerciseID     uuid.UUID `db:"exercise_id" json:"exercise_id"`
	ModelID        uuid.UUID `db:"model_id" json:"model_id"`
	SessionID      string    `db:"session_id" json:"session_id,omitempty"`
	ConversationID string    `db:"conversation_id" json:"conversation_id,omitempty"`
	Kind           string    `db:"kind" json:"kind"`
	Prompt         string    `db:"prompt" json:"prompt"`
	Response       string    `db:"response" json:"response,omitempty"`
	// ImageRef holds a storage pointer (object key) or the vendor URL
	// when archival is disabled.
	ImageRef  string    `db:"image_ref" json:"image_ref,omitempty"`
	Tokens    int       `db:"tokens" json:"tokens"`
	Metadata  JSONB     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
