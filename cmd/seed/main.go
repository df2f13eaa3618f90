// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/config"
	"identity-store/internal/db"
	"identity-store/internal/pipeline"
	sessiondomain "identity-store/internal/session/domain"
	sessionrepo "identity-store/internal/session/repository"
	"identity-store/internal/storage"
	telemetry "identity-store/internal/telemetry/otel"
	userdomain "identity-store/internal/user/domain"
	userrepo "identity-store/internal/user/repository"
)

const (
	devTenantID  = "6b9f3a70-0b4e-4c11-9d5d-1f6a8c2e0001"
	adminEmail   = "admin@example.com"
	memberEmails = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	telemetryShutdown, err := telemetry.Start(context.Background(), cfg.OTLPEndpoint, "identity-store-seed", cfg.OTLPInsecure)
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
	users := userrepo.NewStoreRepository(driver, run)
	sessions := sessionrepo.NewStoreRepository(driver, run)

	tenantID := uuid.MustParse(devTenantID)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, tenantID, adminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (admin@example.com exists). Skipping.")
		os.Exit(0)
	}

	admin, err := users.Create(ctx, &userdomain.User{
		TenantID: tenantID,
		Email:    adminEmail,
		Role:     userdomain.RoleAdmin,
		Active:   true,
	})
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}

	members := make([]*userdomain.User, 0, memberEmails)
	for i := 1; i <= memberEmails; i++ {
		members = append(members, &userdomain.User{
			TenantID: tenantID,
			Email:    fmt.Sprintf("member%d@example.com", i),
			Role:     userdomain.RoleMember,
			Active:   true,
		})
	}
	if _, err := users.CreateBatch(ctx, members); err != nil {
		log.Fatalf("create members: %v", err)
	}

	session, err := sessions.Create(ctx, &sessiondomain.Session{
		UserID:    admin.ID,
		TenantID:  tenantID,
		ExpiresAt: time.Now().UTC().Add(cfg.SessionTTLDuration()),
		UserAgent: "seed/dev",
		IPAddress: "127.0.0.1",
	})
	if err != nil {
		log.Fatalf("create session: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Tenant: %s\n", tenantID)
	fmt.Printf("Admin:  %s (%s)\n", admin.Email, admin.ID)
	fmt.Printf("Token:  %s (expires %s)\n", session.Token, session.ExpiresAt.Format(time.RFC3339))
}
