package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// InteractionRepository handles interaction log database operations
type InteractionRepository struct {
	db *DB
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Create inserts a new interaction row
func (r *InteractionRepository) Create(ctx context.Context, interaction *models.Interaction) error {
	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}
	if interaction.Metadata == nil {
		interaction.Metadata = models.JSONB{}
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO interactions
			(id, exercise_id, model_id, session_id, conversation_id, kind,
			 prompt, response, image_ref, tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		interaction.ID, interaction.ExerciseID, interaction.ModelID,
		interaction.SessionID, interaction.ConversationID, interaction.Kind,
		interaction.Prompt, interaction.Response, interaction.ImageRef,
		interaction.Tokens, interaction.Metadata, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}

	return nil
}

// InteractionFilters contains filter parameters for listing interactions
type InteractionFilters struct {
	ModelID   uuid.UUID
	SessionID string
	Kind      string
	Page      int
	PageSize  int
}

// ListByExercise returns interactions for an exercise, newest first
func (r *InteractionRepository) ListByExercise(ctx context.Context, exerciseID uuid.UUID, filters InteractionFilters) ([]*models.Interaction, error) {
	where := "WHERE exercise_id = $1"
	args := []interface{}{exerciseID}
	argCount := 2

	if filters.ModelID != uuid.Nil {
		where += fmt.Sprintf(" AND model_id = $%d", argCount)
		args = append(args, filters.ModelID)
		argCount++
	}
	if filters.SessionID != "" {
		where += fmt.Sprintf(" AND session_id = $%d", argCount)
		args = append(args, filters.SessionID)
		argCount++
	}
	if filters.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", argCount)
		args = append(args, filters.Kind)
		argCount++
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := fmt.Sprintf(`
		SELECT id, exercise_id, model_id, session_id, conversation_id, kind,
		       prompt, response, image_ref, tokens, metadata, created_at
		FROM interactions
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argCount, argCount+1)

	args = append(args, pageSize, (page-1)*pageSize)

	var interactions []*models.Interaction
	err := r.db.conn.SelectContext(ctx, &interactions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	return interactions, nil
}

// CountByExercise returns the total number of interactions for an exercise
func (r *InteractionRepository) CountByExercise(ctx context.Context, exerciseID uuid.UUID) (int, error) {
	var count int
	err := r.db.conn.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM interactions WHERE exercise_id = $1", exerciseID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}
