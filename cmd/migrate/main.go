package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"marketchat/config"
	"marketchat/internal/repository"
	"marketchat/pkg/database"
)

const usage = `
Marketchat - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Apply the schema (idempotent)
  status      Show database connection status and table sizes
  seed-dev    Seed a student and a vendor with two shops

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	ctx := context.Background()

	cfg := config.LoadConfig()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		log.Println("🚀 Applying schema...")
		if err := repository.InitSchema(ctx, db); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Println("✅ Schema is up to date!")
	case "status":
		showStatus(ctx)
	case "seed-dev":
		log.Println("🌱 Seeding database (development mode)...")
		result, err := database.SeedDevelopment(ctx, db)
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		for _, p := range result.Profiles {
			log.Printf("   - profile %-12s %s", p.AuthUID, p.ID)
		}
		for _, s := range result.Shops {
			log.Printf("   - shop    %-12s %s", s.Name, s.ID)
		}
		log.Println("✅ Development seeding completed!")
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func showStatus(ctx context.Context) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range repository.Tables {
		exists, err := database.TableExists(ctx, database.DB, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.TableCount(ctx, database.DB, table)
			log.Printf("✅ Table %-15s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-15s does not exist", table)
		}
	}
}
