package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/queue"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// InteractionQueueWorker persists interaction logs asynchronously so the
// dispatch path never waits on the database.
type InteractionQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	db          *DB
	config      *queue.Config
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewInteractionQueueWorker creates a new interaction queue worker
func NewInteractionQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, db *DB, config *queue.Config) *InteractionQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("interactions")
	}

	return &InteractionQueueWorker{
		queue:       q,
		dlq:         dlq,
		db:          db,
		config:      config,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *InteractionQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *InteractionQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue adds an interaction to the queue
func (w *InteractionQueueWorker) Enqueue(ctx context.Context, interaction *models.Interaction) error {
	return w.queue.Enqueue(ctx, interaction)
}

// run is the main worker loop
func (w *InteractionQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	logger := utils.NewLogger("interaction-worker")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Interaction worker stopping")
			return
		case <-ctx.Done():
			logger.Info("Interaction worker context cancelled")
			return
		default:
			w.processBatch(ctx, logger)
		}
	}
}

// processBatch processes a batch of interactions
func (w *InteractionQueueWorker) processBatch(ctx context.Context, logger *utils.Logger) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		logger.Error("Failed to dequeue interactions", "error", err)
		time.Sleep(1 * time.Second) // Back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	logger.Debug("Processing interaction batch", "count", len(items))

	interactions := make([]*models.Interaction, 0, len(items))
	for _, item := range items {
		var interaction models.Interaction
		if err := w.unmarshalItem(item, &interaction); err != nil {
			logger.Error("Failed to unmarshal interaction", "error", err)
			continue
		}
		interactions = append(interactions, &interaction)
	}

	if len(interactions) == 0 {
		return
	}

	if err := w.insertBatch(ctx, interactions, logger); err != nil {
		logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		for _, interaction := range interactions {
			if err := w.processItem(ctx, interaction, logger); err != nil {
				logger.Error("Failed to process interaction", "error", err)
			}
		}
	}
}

// insertBatch inserts multiple interactions in a single transaction
func (w *InteractionQueueWorker) insertBatch(ctx context.Context, interactions []*models.Interaction, logger *utils.Logger) error {
	tx, err := w.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO interactions
			(id, exercise_id, model_id, session_id, conversation_id, kind,
			 prompt, response, image_ref, tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for _, interaction := range interactions {
		if interaction.ID == uuid.Nil {
			interaction.ID = uuid.New()
		}
		if interaction.Metadata == nil {
			interaction.Metadata = models.JSONB{}
		}
		if interaction.CreatedAt.IsZero() {
			interaction.CreatedAt = time.Now()
		}

		if _, err := tx.ExecContext(ctx, query,
			interaction.ID, interaction.ExerciseID, interaction.ModelID,
			interaction.SessionID, interaction.ConversationID, interaction.Kind,
			interaction.Prompt, interaction.Response, interaction.ImageRef,
			interaction.Tokens, interaction.Metadata, interaction.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert interaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("Inserted batch successfully", "count", len(interactions))
	return nil
}

// processItem processes a single interaction with retries
func (w *InteractionQueueWorker) processItem(ctx context.Context, interaction *models.Interaction, logger *utils.Logger) error {
	repo := NewInteractionRepository(w.db)

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			logger.Debug("Retrying interaction", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := repo.Create(ctx, interaction); err != nil {
			lastErr = err
			logger.Error("Failed to insert interaction", "attempt", attempt, "error", err)
			continue
		}

		logger.Debug("Interaction inserted", "interaction_id", interaction.ID)
		return nil
	}

	// Max retries exceeded - add to dead letter queue
	if w.dlq != nil {
		if err := w.dlq.Add(ctx, interaction, lastErr); err != nil {
			logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			logger.Warn("Interaction moved to DLQ", "interaction_id", interaction.ID, "error", lastErr)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// unmarshalItem unmarshals a queue item into an Interaction
func (w *InteractionQueueWorker) unmarshalItem(item interface{}, interaction *models.Interaction) error {
	switch v := item.(type) {
	case *models.Interaction:
		*interaction = *v
		return nil
	case models.Interaction:
		*interaction = v
		return nil
	case []byte:
		return json.Unmarshal(v, interaction)
	case json.RawMessage:
		return json.Unmarshal(v, interaction)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, interaction)
	}
}

// GetQueueLength returns the current queue length
func (w *InteractionQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *InteractionQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed item from the dead letter queue
func (w *InteractionQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
				return fmt.Errorf("failed to re-enqueue item: %w", err)
			}

			if err := w.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}

			return nil
		}
	}

	return fmt.Errorf("item not found in dead letter queue")
}
