// Command migrate manages the submission-record table schema using
// golang-migrate, following the same command surface as the teacher's
// migration CLI (up/down/version/force), trimmed to the single
// Postgres-backed table the core owns.
//
// Usage:
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down
//	go run ./cmd/migrate version
//	go run ./cmd/migrate force N
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"rce-core/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("no .env file found, using environment variables")
		}
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.FromEnv()
	migrationsPath := envOr("MIGRATIONS_PATH", "migrations")

	m, db, err := newMigrator(cfg.RecordStoreURL, migrationsPath)
	if err != nil {
		log.Fatalf("failed to initialize migrator: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		runUp(m)
	case "down":
		runDown(m)
	case "version":
		showVersion(m)
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %s", os.Args[2])
		}
		runForce(m, v)
	case "help":
		printUsage()
	default:
		log.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newMigrator(dsn, migrationsPath string) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres connection: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, db, nil
}

func runUp(m *migrate.Migrate) {
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("no pending migrations")
			return
		}
		log.Fatalf("migrate up failed: %v", err)
	}
	log.Println("migrations applied")
}

func runDown(m *migrate.Migrate) {
	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("no migrations to roll back")
			return
		}
		log.Fatalf("migrate down failed: %v", err)
	}
	log.Println("last migration rolled back")
}

func showVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("no migrations applied yet")
			return
		}
		log.Fatalf("failed to read version: %v", err)
	}
	log.Printf("version=%d dirty=%v", version, dirty)
}

func runForce(m *migrate.Migrate, version int) {
	if err := m.Force(version); err != nil {
		log.Fatalf("force failed: %v", err)
	}
	log.Printf("forced version to %d", version)
}

func printUsage() {
	fmt.Print(`
rce-core migration tool

Usage:
  migrate <command> [arguments]

Commands:
  up            Apply all pending migrations
  down          Roll back the last migration
  version       Show current migration version
  force <N>     Force version to N (fix a dirty state)
  help          Show this help message

Environment Variables:
  RECORD_STORE_URL   Postgres connection string
  MIGRATIONS_PATH    Path to the migrations directory (default: migrations)
`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
