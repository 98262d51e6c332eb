package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"poya.com/medplant-engine/internal/api"
	"poya.com/medplant-engine/internal/config"
	"poya.com/medplant-engine/internal/core"
	"poya.com/medplant-engine/internal/knowledge"
	"poya.com/medplant-engine/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	logger, err := newLogger(config.AppConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Initialize the generative model client. A missing API key is not
	// fatal here; calls will be rejected by the service instead.
	ctx := context.Background()
	oracle, err := core.NewGeminiOracle(ctx, config.AppConfig.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("failed to initialize GenAI client", zap.Error(err))
	}
	defer oracle.Close()

	// The knowledge base persists contributed records through the SQLite
	// store's kv table and degrades to in-memory if that fails.
	kb, err := knowledge.NewFactStore(dbStore, logger)
	if err != nil {
		logger.Fatal("failed to initialize knowledge base", zap.Error(err))
	}
	logger.Info("knowledge base loaded", zap.Int("records", len(kb.ListAll())))

	oracleTimeout := time.Duration(config.AppConfig.OracleTimeoutSeconds) * time.Second
	engine := core.NewConversationEngine(oracle, kb, oracleTimeout, logger)
	chatService := core.NewChatService(dbStore, engine, oracle, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, kb, oracle, logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
