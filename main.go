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

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/repository"
	"github.com/xiaot623/gogo/chatd/internal/service"
	handler "github.com/xiaot623/gogo/chatd/internal/transport/http"
	"github.com/xiaot623/gogo/chatd/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting chatd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Engine: mode=%s url=%s", cfg.EngineMode, cfg.EngineURL)
	log.Printf("Chat dir: %s", cfg.ChatDir)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Initialize session cache
	var cache store.ConversationCache
	if cfg.RedisURL != "" {
		redisCache, err := store.NewRedisCache(cfg.RedisURL, cfg.SessionCacheTTL)
		if err != nil {
			log.Fatalf("Failed to initialize session cache: %v", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("WARN: redis unreachable, session cache disabled: %v", err)
			redisCache.Close()
		} else {
			cache = redisCache
			defer redisCache.Close()
			log.Printf("Session cache: redis (ttl %s)", cfg.SessionCacheTTL)
		}
	}

	// Initialize engine
	engine := llm.NewEngine(cfg.EngineMode, cfg.EngineURL, cfg.EngineAPIKey, cfg.EngineTimeout)

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, policy.Limits{
		MaxTokens:     cfg.MaxTokensLimit,
		AllowedModels: cfg.AllowedModels,
	})
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service
	svc := service.New(db, cache, engine, cfg, policyEngine)

	// Create Echo server
	server := handler.NewServer(svc, cfg)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chatd...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("chatd stopped")
}
