package main

import (
	"log"

	"taskplanner/internal/config"
	"taskplanner/internal/db"
)

func main() {
	cfg := config.Load()
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open planner database %s: %v", cfg.DBPath, err)
	}
	defer database.Close()

	// A fresh file has no schema_migrations table yet, so an error here
	// just means nothing was applied before.
	before, _ := db.AppliedMigrations(database)
	seen := make(map[string]bool, len(before))
	for _, name := range before {
		seen[name] = true
	}

	source := "embedded migrations"
	if cfg.MigrationsDir != "" {
		source = cfg.MigrationsDir
	}
	if err := db.RunMigrations(database, db.MigrationSource(cfg.MigrationsDir)); err != nil {
		log.Fatalf("run migrations from %s: %v", source, err)
	}

	after, err := db.AppliedMigrations(database)
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	for _, name := range after {
		if !seen[name] {
			log.Printf("applied %s", name)
		}
	}
	log.Printf("planner schema at %s is current (%d migrations from %s)", cfg.DBPath, len(after), source)
}
