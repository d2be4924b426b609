package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/config"
	"wanderplan/internal/database"
	"wanderplan/internal/handlers"
	"wanderplan/internal/logger"
	"wanderplan/internal/services"
	"wanderplan/internal/session"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger.Initialize(logger.ParseLevel(cfg.LogLevel), cfg.IsDevelopment())

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	api := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.APITimeout))
	store := database.NewSessionStore(db, cfg.SecretKey, cfg.SessionDuration)
	sessions := session.NewManager(store, services.NewAuthService(api))
	unsubscribe := sessions.Subscribe(api.Events())
	defer unsubscribe()

	r := gin.New()
	r.Use(gin.Recovery())

	handlers.SetupRoutes(r, &handlers.Deps{
		Config:       cfg,
		DB:           db,
		Sessions:     sessions,
		Destinations: services.NewDestinationService(api),
		Itineraries:  services.NewItineraryService(api),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, db, sessions)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "api", cfg.APIBaseURL, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// cleanupLoop expires stale tokens and forgets idle in-memory sessions.
func cleanupLoop(ctx context.Context, db *sql.DB, sessions *session.Manager) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := database.CleanupExpiredSessions(db); err != nil {
			logger.Warn("Failed to clean up expired sessions", "error", err)
		}
		if err := database.CleanupExpiredCSRFTokens(db); err != nil {
			logger.Warn("Failed to clean up expired CSRF tokens", "error", err)
		}
		if n := sessions.Prune(24 * time.Hour); n > 0 {
			logger.Debug("Pruned idle sessions", "count", n)
		}
	}
}
