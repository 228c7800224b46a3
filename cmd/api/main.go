package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dropgate/service/internal/admin"
	"github.com/dropgate/service/internal/apikey"
	"github.com/dropgate/service/internal/config"
	"github.com/dropgate/service/internal/file"
	"github.com/dropgate/service/internal/kv"
	appMiddleware "github.com/dropgate/service/internal/middleware"
	"github.com/dropgate/service/internal/relay"
	"github.com/dropgate/service/internal/upload"
	"github.com/dropgate/service/internal/usage"
)

func main() {
	cfg := config.Load()

	// The store is optional: without it, reads come back empty and rate
	// limiting fails open. API key creation fails outright.
	var store kv.Store
	if cfg.RedisAddr == "" {
		log.Println("key-value store not configured; usage tracking and API keys disabled")
	} else if s, err := kv.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		log.Printf("key-value store unreachable, continuing without it: %v", err)
	} else {
		store = s
	}

	relayClient := relay.NewClient(nil, cfg.APIBase, cfg.BotToken, cfg.ChatID)

	keys := apikey.NewRegistry(store)
	limiter := usage.NewLimiter(store)
	ledger := usage.NewLedger(store)

	uploadSvc := upload.NewService(keys, limiter, ledger, relayClient)
	uploadHandler := upload.NewHandler(uploadSvc, cfg.PublicBaseURL)
	fileHandler := file.NewHandler(relayClient, cfg.PublicBaseURL)
	adminHandler := admin.NewHandler(keys, ledger, cfg.AdminUsername, cfg.AdminPassword)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", uploadHandler.Upload)
		r.Post("/auth", adminHandler.Login)

		// Operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireOperator(cfg.AdminUsername, cfg.AdminPassword))
			r.Get("/api-keys", adminHandler.ListKeys)
			r.Post("/api-keys", adminHandler.CreateKey)
			r.Delete("/api-keys", adminHandler.DeleteKey)
			r.Get("/stats", adminHandler.GetStats)
			r.Delete("/stats", adminHandler.DeleteStats)
		})
	})

	r.Get("/file/{id}", fileHandler.Get)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
