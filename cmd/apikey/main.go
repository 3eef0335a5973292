// Package main provides a CLI tool for minting API keys. The raw key is
// printed once; only its hash is stored.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/trust-scanner/internal/api"
	"github.com/trust-scanner/internal/config"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

func main() {
	var (
		name  = flag.String("name", "", "Human-readable key name")
		tier  = flag.String("tier", string(types.TierFree), "Key tier: free or pro")
		quota = flag.Int("quota", 1000, "Daily request quota")
	)
	flag.Parse()

	if *name == "" {
		log.Fatal("--name is required")
	}
	apiTier := types.APITier(*tier)
	if apiTier != types.TierFree && apiTier != types.TierPro {
		log.Fatalf("Unknown tier: %s", *tier)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		log.Fatalf("Failed to generate key material: %v", err)
	}
	rawKey := "tsk_" + hex.EncodeToString(raw)

	key := &models.APIKey{
		KeyHash:    api.HashKey(rawKey),
		Name:       *name,
		Tier:       apiTier,
		DailyQuota: *quota,
	}
	if err := storage.NewAPIKeyRepository(db).Create(context.Background(), key); err != nil {
		log.Fatalf("Failed to create API key: %v", err)
	}

	fmt.Printf("API key created: %s\n", key.ID)
	fmt.Printf("Key (save it now, it is not stored): %s\n", rawKey)
}
