// Command seed syncs the permission table and built-in roles without starting the API.
package main

import (
	"context"
	"log"

	"adminauth/internal/config"
	"adminauth/internal/database"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	permRepo := repository.NewPermissionRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	seeder := rbac.NewSeeder(permRepo, roleRepo, repository.NewTransactionManager(db))
	audit := service.NewAuditService(repository.NewAuditRepository(db))

	report, err := service.SeedAccessControl(context.Background(), seeder, cfg.DefaultRole, audit)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seed complete: created=%d updated=%d unchanged=%d", report.Created, report.Updated, report.Unchanged)
}
