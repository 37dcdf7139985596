package blind

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// AssignmentStore is the persistence surface the engine needs
type AssignmentStore interface {
	ReplaceForExercise(ctx context.Context, exerciseID uuid.UUID, assignments []*models.ExerciseModelAssignment) error
	GetByBlindName(ctx context.Context, exerciseID uuid.UUID, blindName string) (*models.AssignedModel, error)
	GetByModel(ctx context.Context, exerciseID, modelID uuid.UUID) (*models.AssignedModel, error)
	ListForExercise(ctx context.Context, exerciseID uuid.UUID) ([]*models.AssignedModel, error)
}

// ModelStore resolves model ids during assignment
type ModelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error)
}

// Target is one model to assign, with an optional exercise-level
// temperature override.
type Target struct {
	ModelID             uuid.UUID `json:"model_id"`
	TemperatureOverride *float64  `json:"temperature_override,omitempty"`
}

// Engine binds models to exercises under blind labels and resolves
// labels back to models at generation time.
type Engine struct {
	pool        []string
	assignments AssignmentStore
	models      ModelStore
}

// NewEngine creates an engine with the default label pool
func NewEngine(assignments AssignmentStore, models ModelStore) *Engine {
	return NewEngineWithPool(assignments, models, DefaultPool)
}

// NewEngineWithPool creates an engine with a custom label pool
func NewEngineWithPool(assignments AssignmentStore, models ModelStore, pool []string) *Engine {
	return &Engine{
		pool:        pool,
		assignments: assignments,
		models:      models,
	}
}

// Preview returns the assignments Assign would produce for the ordered
// target list without persisting anything.
func (e *Engine) Preview(targets []Target) []*models.ExerciseModelAssignment {
	assignments := make([]*models.ExerciseModelAssignment, 0, len(targets))
	for i, target := range targets {
		assignments = append(assignments, &models.ExerciseModelAssignment{
			ModelID:             target.ModelID,
			BlindName:           labelAt(e.pool, i),
			Position:            i,
			TemperatureOverride: target.TemperatureOverride,
		})
	}
	return assignments
}

// Assign atomically replaces the exercise's assignment set with one row
// per target in order. Re-assigning invalidates all previous labels for
// the exercise. An empty target list is legal and clears the exercise.
func (e *Engine) Assign(ctx context.Context, exerciseID uuid.UUID, targets []Target) ([]*models.ExerciseModelAssignment, error) {
	seen := make(map[uuid.UUID]bool, len(targets))
	for _, target := range targets {
		if target.ModelID == uuid.Nil {
			return nil, fmt.Errorf("assignment target has no model id")
		}
		if seen[target.ModelID] {
			return nil, fmt.Errorf("model %s listed more than once", target.ModelID)
		}
		seen[target.ModelID] = true

		if _, err := e.models.GetByID(ctx, target.ModelID); err != nil {
			return nil, fmt.Errorf("failed to resolve model %s: %w", target.ModelID, err)
		}
	}

	assignments := e.Preview(targets)
	if err := e.assignments.ReplaceForExercise(ctx, exerciseID, assignments); err != nil {
		return nil, err
	}

	return assignments, nil
}

// Resolve maps a participant-facing blind label back to the real model.
// The caller is responsible for never exposing the returned model's
// identity in participant-facing output.
func (e *Engine) Resolve(ctx context.Context, exerciseID uuid.UUID, blindName string) (*models.AssignedModel, error) {
	return e.assignments.GetByBlindName(ctx, exerciseID, blindName)
}

// AssignmentFor returns the assignment of a specific model within an
// exercise.
func (e *Engine) AssignmentFor(ctx context.Context, exerciseID, modelID uuid.UUID) (*models.AssignedModel, error) {
	return e.assignments.GetByModel(ctx, exerciseID, modelID)
}

// ListForExercise returns the exercise's assignments joined with live
// model rows. Assignments pointing at inactive models are filtered out
// when activeOnly is set.
func (e *Engine) ListForExercise(ctx context.Context, exerciseID uuid.UUID, activeOnly bool) ([]*models.AssignedModel, error) {
	assigned, err := e.assignments.ListForExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	if !activeOnly {
		return assigned, nil
	}

	filtered := make([]*models.AssignedModel, 0, len(assigned))
	for _, a := range assigned {
		if a.IsActive {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}
