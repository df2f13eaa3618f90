// cleanup purges expired sessions older than the configured grace window.
// Intended to run from cron; prints the number of rows removed.
package main

import (
	"context"
	"log"
	"time"

	"identity-store/internal/config"
	"identity-store/internal/db"
	"identity-store/internal/pipeline"
	sessionrepo "identity-store/internal/session/repository"
	"identity-store/internal/storage"
	telemetry "identity-store/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	telemetryShutdown, err := telemetry.Start(context.Background(), cfg.OTLPEndpoint, "identity-store-cleanup", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() { _ = telemetryShutdown(context.Background()) }()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	driver := storage.NewSQLDriver(conn, storage.PostgresDialect{})
	run := pipeline.New(pipeline.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		RetryDelay:  cfg.RetryDelayDuration(),
	})
	sessions := sessionrepo.NewStoreRepository(driver, run)

	cutoff := time.Now().UTC().Add(-cfg.CleanupGraceDuration())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := sessions.CleanupExpired(ctx, cutoff)
	if err != nil {
		log.Fatalf("cleanup: %v", err)
	}
	log.Printf("cleanup: removed %d sessions expired before %s", removed, cutoff.Format(time.RFC3339))
}
