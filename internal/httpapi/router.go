package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/config"
	"github.com/somos-red-teaming/somosportal-sub000/internal/dispatch"
	"github.com/somos-red-teaming/somosportal-sub000/internal/imagestore"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/queue"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// Dependencies aggregates the services the HTTP layer needs. The caller
// owns shutdown order: stop the server, then the worker, then Close.
type Dependencies struct {
	DB       *storage.DB
	Queue    queue.Queue
	DLQ      queue.DeadLetterQueue
	Worker   *storage.InteractionQueueWorker
	Registry *providers.Manager
	Engine   *blind.Engine
	Dispatch *dispatch.Service
}

// Close releases everything the router wired up
func (d *Dependencies) Close() error {
	d.Registry.Close()
	d.Queue.Close()
	if d.DLQ != nil {
		d.DLQ.Close()
	}
	return d.DB.Close()
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("router")

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ModelCacheSize:  cfg.Cache.ModelCacheSize,
		ModelCacheTTL:   cfg.Cache.ModelCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Interaction queue: Redis when configured, in-memory otherwise
	queueConfig := &queue.Config{
		BatchSize:     cfg.Queue.BatchSize,
		BatchTimeout:  cfg.Queue.BatchTimeout,
		MaxRetries:    cfg.Queue.MaxRetries,
		RetryBackoff:  cfg.Queue.RetryBackoff,
		UseRedis:      cfg.Redis.Address != "",
		RedisAddr:     cfg.Redis.Address,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		QueueName:     "interactions",
	}

	var interactionQueue queue.Queue
	var dlq queue.DeadLetterQueue
	if queueConfig.UseRedis {
		redisQueue, err := queue.NewRedisQueue(queueConfig)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize Redis queue: %w", err)
		}
		redisDLQ, err := queue.NewRedisDeadLetterQueue(queueConfig)
		if err != nil {
			redisQueue.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize Redis DLQ: %w", err)
		}
		interactionQueue = redisQueue
		dlq = redisDLQ
		logger.Info("Using Redis interaction queue", "address", cfg.Redis.Address)
	} else {
		interactionQueue = queue.NewMemoryQueue(queueConfig)
		dlq = queue.NewMemoryDeadLetterQueue()
		logger.Info("Using in-memory interaction queue")
	}

	worker := storage.NewInteractionQueueWorker(interactionQueue, dlq, db, queueConfig)

	// Image archival
	var images imagestore.Store = imagestore.NoopStore{}
	if cfg.ImageStore.Enabled {
		s3Store, err := imagestore.NewS3Store(context.Background(),
			cfg.ImageStore.S3Bucket, cfg.ImageStore.S3Region, cfg.ImageStore.S3Prefix)
		if err != nil {
			interactionQueue.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize image store: %w", err)
		}
		images = s3Store
		logger.Info("Image archival enabled", "bucket", cfg.ImageStore.S3Bucket)
	}

	modelRepo := storage.NewModelRepository(db)
	assignmentRepo := storage.NewAssignmentRepository(db)

	registry := providers.NewManager(cfg.Provider.RequestTimeout)
	engine := blind.NewEngine(assignmentRepo, modelRepo)
	dispatcher := dispatch.NewService(modelRepo, engine, registry, worker, images)

	deps := &Dependencies{
		DB:       db,
		Queue:    interactionQueue,
		DLQ:      dlq,
		Worker:   worker,
		Registry: registry,
		Engine:   engine,
		Dispatch: dispatcher,
	}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Health(ctx); err != nil {
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Participant endpoints
	chatHandler := NewChatHandler(engine, dispatcher)
	mux.Handle("/api/exercises/", chatHandler)

	// Admin endpoints
	modelsHandler := NewAdminModelsHandler(db, registry)
	mux.Handle("/admin/models", modelsHandler)
	mux.Handle("/admin/models/", modelsHandler)

	exercisesHandler := NewAdminExercisesHandler(db, engine)
	mux.Handle("/admin/exercises", exercisesHandler)
	mux.Handle("/admin/exercises/", exercisesHandler)

	mux.Handle("/admin/assignments/preview", NewAdminAssignmentsHandler(engine))

	return mux, deps, nil
}
