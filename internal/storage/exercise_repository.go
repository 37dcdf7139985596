package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// ExerciseRepository handles exercise database operations
type ExerciseRepository struct {
	db *DB
}

// NewExerciseRepository creates a new exercise repository
func NewExerciseRepository(db *DB) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

// GetByID retrieves an exercise by ID
func (r *ExerciseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Exercise, error) {
	var exercise models.Exercise
	query := `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM exercises
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &exercise, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	return &exercise, nil
}

// List returns all exercises, optionally restricted to active ones
func (r *ExerciseRepository) List(ctx context.Context, activeOnly bool) ([]*models.Exercise, error) {
	query := `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM exercises
	`
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY created_at DESC"

	var exercises []*models.Exercise
	err := r.db.conn.SelectContext(ctx, &exercises, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}

	return exercises, nil
}

// Create inserts a new exercise
func (r *ExerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	if exercise.ID == uuid.Nil {
		exercise.ID = uuid.New()
	}

	now := time.Now()
	exercise.CreatedAt = now
	exercise.UpdatedAt = now

	query := `
		INSERT INTO exercises (id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		exercise.ID, exercise.Name, exercise.Description, exercise.IsActive,
		exercise.CreatedAt, exercise.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create exercise: %w", err)
	}

	return nil
}

// Update updates an existing exercise
func (r *ExerciseRepository) Update(ctx context.Context, exercise *models.Exercise) error {
	exercise.UpdatedAt = time.Now()

	query := `
		UPDATE exercises
		SET name = $2, description = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		exercise.ID, exercise.Name, exercise.Description, exercise.IsActive,
		exercise.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update exercise: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrExerciseNotFound
	}

	return nil
}

// Delete deletes an exercise (assignments and interactions cascade)
func (r *ExerciseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM exercises WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete exercise: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrExerciseNotFound
	}

	return nil
}
