package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/seanankenbruck/viewpoint-search/internal/config"
	"github.com/seanankenbruck/viewpoint-search/internal/database"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply (0 = all)")
	path := flag.String("path", "./migrations", "directory holding the migration files")
	flag.Parse()

	if *direction != string(database.Up) && *direction != string(database.Down) {
		log.Fatalf("Unknown direction %q (expected up or down)", *direction)
	}
	if *steps < 0 {
		log.Fatalf("--steps must not be negative")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	dbc := cfg.Database

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%d/%s\n", dbc.Username, dbc.Host, dbc.Port, dbc.Database)

	dsn := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbc.Username, dbc.Password),
		Host:     dbc.Host + ":" + strconv.Itoa(dbc.Port),
		Path:     "/" + dbc.Database,
		RawQuery: "sslmode=" + sslMode(dbc.SSLMode),
	}).String()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	err = database.VerifyDatabase(ctx, db, dbc.Database)
	db.Close()
	if err != nil {
		log.Fatalf("Database connectivity failed: %v", err)
	}
	fmt.Println("✓ Database connectivity verified")

	status, err := database.RunMigrations(database.MigrationConfig{
		DatabaseURL:    dsn,
		MigrationsPath: *path,
		Direction:      database.Direction(*direction),
		Steps:          *steps,
	})
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if !status.Changed {
		fmt.Printf("✓ Schema already current at version %d\n", status.Version)
		return
	}
	fmt.Printf("✓ Migrations (%s) completed, schema version %d (dirty=%t)\n", *direction, status.Version, status.Dirty)
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
