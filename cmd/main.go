package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpernett/godotenv"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/application/services"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/cache/adapter"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/cache/port"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/database"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/realtime"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/interfaces/api"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/presence"
)

func loadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
}

func newCache() port.Cache {
	cache, err := adapter.NewRedisAdapter()
	if err != nil {
		log.Printf("Redis unavailable, presence falls back to in-process cache: %v", err)
		return adapter.NewMemoryCache()
	}
	return cache
}

func main() {
	loadEnv()

	db, err := database.NewPostgreSQLDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	cache := newCache()
	defer cache.Close()

	tracker := presence.NewTracker(cache)
	chatService := services.NewChatService(db, tracker)
	hub := realtime.NewHub(chatService, tracker)

	chatHandler := api.NewChatHandler(chatService, hub)
	wsHandler := api.NewWebSocketHandler(hub)
	router := api.NewRouter(chatHandler, wsHandler)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8082"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited gracefully.")
}
