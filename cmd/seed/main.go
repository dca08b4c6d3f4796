// seed bootstraps the admin account from ADMIN_USERNAME/ADMIN_PASSWORD.
// Idempotent: exits cleanly if the admin identity already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"medianest/backend/internal/config"
	"medianest/backend/internal/db"
	identitydomain "medianest/backend/internal/identity/domain"
	identityrepo "medianest/backend/internal/identity/repository"
	identitysvc "medianest/backend/internal/identity/service"
	"medianest/backend/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		log.Fatal("ADMIN_USERNAME and ADMIN_PASSWORD must be set")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := identityrepo.NewPostgresRepository(conn)

	existing, err := repo.GetByUsername(ctx, cfg.AdminUsername)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", cfg.AdminUsername)
		os.Exit(0)
	}

	identities := identitysvc.NewIdentityService(repo, security.NewHasher(cfg.BcryptCost), nil)
	identity, err := identities.Register(ctx, cfg.AdminUsername, "", cfg.AdminPassword, identitydomain.RoleAdmin)
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin account: %s (id %s)\n", identity.Username, identity.ID)
}
