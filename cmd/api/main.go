package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planoflife/api/internal/app"
	"planoflife/api/internal/authpw"
	"planoflife/api/internal/config"
	"planoflife/api/internal/session"
	"planoflife/api/internal/store"
	"planoflife/api/internal/suggest"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()

	suggestClient := suggest.New(suggest.Config{
		APIURL:       cfg.SuggestAPIURL,
		TokenURL:     cfg.SuggestTokenURL,
		ClientID:     cfg.SuggestClientID,
		ClientSecret: cfg.SuggestClientSecret,
		Model:        cfg.SuggestModel,
	})
	if suggestClient.IsConfigured() {
		log.Printf("Suggestion generator enabled (model %s)", cfg.SuggestModel)
	} else {
		log.Printf("Suggestion generator disabled: no client credentials")
	}

	authService := authpw.NewService(dataStore)
	service := app.New(cfg, dataStore, redisStore, suggestClient, authService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Plan of Life API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
