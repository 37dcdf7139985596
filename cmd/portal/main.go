package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/somos-red-teaming/somosportal-sub000/internal/config"
	"github.com/somos-red-teaming/somosportal-sub000/internal/httpapi"
	"github.com/somos-red-teaming/somosportal-sub000/internal/middleware"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Apply schema migrations
	if cfg.RunMigrations {
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Create router with all dependencies
	mux, deps, err := httpapi.NewRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// Start the interaction persistence worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	deps.Worker.Start(workerCtx)

	// Wrap the mux with recovery and request logging
	httpLogger := utils.NewLogger("http")
	var handler http.Handler = mux
	handler = middleware.Logging(httpLogger)(handler)
	handler = middleware.Recover(httpLogger)(handler)

	// Create HTTP server
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // image polling can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Portal listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop the worker so buffered interactions flush before close
	if err := deps.Worker.Stop(); err != nil {
		log.Printf("Failed to stop interaction worker: %v", err)
	}

	if err := deps.Close(); err != nil {
		log.Printf("Failed to close dependencies: %v", err)
	}

	log.Println("Server exited")
}
