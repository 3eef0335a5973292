// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/trust-scanner/internal/config"
	"github.com/trust-scanner/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations", "Path to migration files")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *action {
	case "up":
		log.Println("Running migrations...")
		if err := storage.RunMigrations(cfg.Database.URL, *path); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	case "down":
		log.Println("Rolling back migrations...")
		if err := storage.RollbackMigrations(cfg.Database.URL, *path); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rollback completed successfully")
	case "version":
		version, dirty, err := storage.MigrationVersion(cfg.Database.URL, *path)
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}
