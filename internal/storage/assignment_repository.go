package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// AssignmentRepository handles blind assignment database operations
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// assignedModelQuery joins assignments with the live model row. The
// supports_image column is derived so callers never inspect capabilities
// themselves.
const assignedModelQuery = `
	SELECT
		a.id, a.exercise_id, a.model_id, a.blind_name, a.position,
		a.temperature_override, a.created_at,
		m.name AS model_name, m.provider,
		'image' = ANY(m.capabilities) AS supports_image,
		m.is_active
	FROM exercise_model_assignments a
	INNER JOIN models m ON m.id = a.model_id
`

// ReplaceForExercise atomically replaces the full assignment set of an
// exercise. Either every new row is written or the previous set survives.
func (r *AssignmentRepository) ReplaceForExercise(ctx context.Context, exerciseID uuid.UUID, assignments []*models.ExerciseModelAssignment) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM exercise_model_assignments WHERE exercise_id = $1", exerciseID,
	); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	query := `
		INSERT INTO exercise_model_assignments
			(id, exercise_id, model_id, blind_name, position, temperature_override, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	for _, a := range assignments {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.ExerciseID = exerciseID
		a.CreatedAt = now

		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.ExerciseID, a.ModelID, a.BlindName, a.Position,
			a.TemperatureOverride, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignments: %w", err)
	}

	return nil
}

// GetByBlindName resolves a blind label within an exercise
func (r *AssignmentRepository) GetByBlindName(ctx context.Context, exerciseID uuid.UUID, blindName string) (*models.AssignedModel, error) {
	var assigned models.AssignedModel
	query := assignedModelQuery + " WHERE a.exercise_id = $1 AND a.blind_name = $2"

	err := r.db.conn.GetContext(ctx, &assigned, query, exerciseID, blindName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &assigned, nil
}

// GetByModel returns the assignment for a specific model within an exercise
func (r *AssignmentRepository) GetByModel(ctx context.Context, exerciseID, modelID uuid.UUID) (*models.AssignedModel, error) {
	var assigned models.AssignedModel
	query := assignedModelQuery + " WHERE a.exercise_id = $1 AND a.model_id = $2"

	err := r.db.conn.GetContext(ctx, &assigned, query, exerciseID, modelID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &assigned, nil
}

// ListForExercise returns all assignments of an exercise in position order
func (r *AssignmentRepository) ListForExercise(ctx context.Context, exerciseID uuid.UUID) ([]*models.AssignedModel, error) {
	query := assignedModelQuery + " WHERE a.exercise_id = $1 ORDER BY a.position"

	var assigned []*models.AssignedModel
	err := r.db.conn.SelectContext(ctx, &assigned, query, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return assigned, nil
}
