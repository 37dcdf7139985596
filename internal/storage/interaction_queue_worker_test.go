package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/queue"
)

func TestInteractionQueueWorkerUnmarshalItem(t *testing.T) {
	worker := NewInteractionQueueWorker(queue.NewMemoryQueue(nil), nil, nil, nil)

	source := models.Interaction{
		ID:         uuid.New(),
		ExerciseID: uuid.New(),
		ModelID:    uuid.New(),
		Kind:       models.InteractionText,
		Prompt:     "hello",
		Response:   "world",
	}

	// The memory queue hands back typed values, the Redis queue raw JSON
	raw, err := json.Marshal(&source)
	require.NoError(t, err)

	items := []interface{}{
		&source,
		source,
		raw,
		json.RawMessage(raw),
	}

	for _, item := range items {
		var got models.Interaction
		require.NoError(t, worker.unmarshalItem(item, &got))
		assert.Equal(t, source.ID, got.ID)
		assert.Equal(t, "hello", got.Prompt)
	}
}

func TestInteractionQueueWorkerRetryDeadLetterItem(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	dlq := queue.NewMemoryDeadLetterQueue()
	worker := NewInteractionQueueWorker(q, dlq, nil, nil)

	ctx := context.Background()

	interaction := &models.Interaction{
		ID:         uuid.New(),
		ExerciseID: uuid.New(),
		ModelID:    uuid.New(),
		Kind:       models.InteractionText,
		Prompt:     "stuck",
	}
	require.NoError(t, dlq.Add(ctx, interaction, assert.AnError))

	parked, err := worker.GetDeadLetterItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, parked, 1)

	require.NoError(t, worker.RetryDeadLetterItem(ctx, parked[0].ID))

	// The item is back on the main queue and gone from the DLQ
	length, err := worker.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	parked, err = worker.GetDeadLetterItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, parked)

	assert.Error(t, worker.RetryDeadLetterItem(ctx, "no-such-id"))
}

func TestInteractionQueueWorkerPersistsBatch(t *testing.T) {
	skipIfNoDatabase(t)

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	exercise := createTestExercise(t, db)
	model := createTestModel(t, db)

	config := queue.DefaultConfig("test-interactions")
	config.BatchTimeout = 100 * time.Millisecond

	q := queue.NewMemoryQueue(config)
	worker := NewInteractionQueueWorker(q, queue.NewMemoryDeadLetterQueue(), db, config)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker.Start(workerCtx)

	for i := 0; i < 3; i++ {
		require.NoError(t, worker.Enqueue(ctx, &models.Interaction{
			ID:         uuid.New(),
			ExerciseID: exercise.ID,
			ModelID:    model.ID,
			Kind:       models.InteractionText,
			Prompt:     "prompt",
			Response:   "response",
		}))
	}

	repo := NewInteractionRepository(db)
	deadline := time.After(5 * time.Second)
	for {
		count, err := repo.CountByExercise(ctx, exercise.ID)
		require.NoError(t, err)
		if count == 3 {
			break
		}

		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for batch insert, got %d rows", count)
		case <-time.After(50 * time.Millisecond):
		}
	}

	require.NoError(t, worker.Stop())
}
