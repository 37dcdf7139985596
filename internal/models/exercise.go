package models

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is a scoped red-teaming campaign. Models are bound to an
// exercise under blind labels; participants only ever see the labels.
type Exercise struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
