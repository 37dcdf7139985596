package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// ModelRepository handles model config database operations with caching
type ModelRepository struct {
	db    *DB
	cache *LRUCache
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{
		db:    db,
		cache: db.GetModelCache(),
	}
}

const modelColumns = `
	id, name, provider, vendor_model, configuration, capabilities, is_active,
	created_at, updated_at
`

// GetByID retrieves a model config by ID (with caching)
func (r *ModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error) {
	if cached, found := r.cache.Get(id.String()); found {
		return cached.(*models.ModelConfig), nil
	}

	var model models.ModelConfig
	query := fmt.Sprintf("SELECT %s FROM models WHERE id = $1", modelColumns)

	err := r.db.conn.GetContext(ctx, &model, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	r.cache.Set(id.String(), &model)

	return &model, nil
}

// List returns all model configs, optionally restricted to active ones
func (r *ModelRepository) List(ctx context.Context, activeOnly bool) ([]*models.ModelConfig, error) {
	query := fmt.Sprintf("SELECT %s FROM models", modelColumns)
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY name"

	var modelsList []*models.ModelConfig
	err := r.db.conn.SelectContext(ctx, &modelsList, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return modelsList, nil
}

// Create inserts a new model config
func (r *ModelRepository) Create(ctx context.Context, model *models.ModelConfig) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.Configuration == nil {
		model.Configuration = models.JSONB{}
	}
	if len(model.Capabilities) == 0 {
		model.Capabilities = pq.StringArray{string(models.CapabilityText)}
	}

	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	query := `
		INSERT INTO models (id, name, provider, vendor_model, configuration, capabilities, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		model.ID, model.Name, model.Provider, model.VendorModel,
		model.Configuration, model.Capabilities, model.IsActive,
		model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// Update updates an existing model config and invalidates the cache
func (r *ModelRepository) Update(ctx context.Context, model *models.ModelConfig) error {
	model.UpdatedAt = time.Now()

	query := `
		UPDATE models
		SET name = $2, provider = $3, vendor_model = $4, configuration = $5,
		    capabilities = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		model.ID, model.Name, model.Provider, model.VendorModel,
		model.Configuration, model.Capabilities, model.IsActive, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModelNotFound
	}

	r.cache.Delete(model.ID.String())

	return nil
}

// Delete deletes a model config and invalidates the cache
func (r *ModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM models WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModelNotFound
	}

	r.cache.Delete(id.String())

	return nil
}

// InvalidateCache removes a model from the cache
func (r *ModelRepository) InvalidateCache(id uuid.UUID) {
	r.cache.Delete(id.String())
}
