package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Direction selects what RunMigrations does.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationConfig holds migration configuration
type MigrationConfig struct {
	DatabaseURL    string
	MigrationsPath string
	Direction      Direction
	// Steps limits how many migrations to apply; zero means all.
	Steps int
}

// Status describes the schema version after a run.
type Status struct {
	Version uint
	Dirty   bool
	Changed bool
}

// RunMigrations applies the migrations in config.MigrationsPath over its
// own connection.
func RunMigrations(config MigrationConfig) (Status, error) {
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return Status{}, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return Status{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", config.MigrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		db.Close()
		return Status{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Closing the instance closes db as well.
	defer m.Close()

	switch {
	case config.Steps != 0 && config.Direction == Down:
		err = m.Steps(-config.Steps)
	case config.Steps != 0:
		err = m.Steps(config.Steps)
	case config.Direction == Down:
		err = m.Down()
	default:
		err = m.Up()
	}

	status := Status{Changed: true}
	if errors.Is(err, migrate.ErrNoChange) {
		status.Changed = false
		err = nil
	}
	if err != nil {
		return status, fmt.Errorf("failed to run migrations (%s): %w", config.Direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("failed to read migration version: %w", err)
	}
	status.Version, status.Dirty = version, dirty

	return status, nil
}

// VerifyDatabase checks that dbname exists and is reachable through db.
func VerifyDatabase(ctx context.Context, db *sql.DB, dbname string) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)`
	if err := db.QueryRowContext(ctx, checkQuery, dbname).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("database %s does not exist", dbname)
	}
	return nil
}

// HealthCheck verifies connectivity, the pgvector extension and that the
// viewpoint tables are queryable.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var hasVector bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&hasVector)
	if err != nil {
		return fmt.Errorf("failed to check vector extension: %w", err)
	}
	if !hasVector {
		return fmt.Errorf("pgvector extension is not installed")
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1 FROM viewpoint_entity LIMIT 1").Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query viewpoint_entity: %w", err)
	}

	return nil
}
