package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"inspection/internal/storage/ch"
	"inspection/migrations"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	backend := getEnv("STORAGE_BACKEND", "sqlite")
	db, dialect, err := open(backend)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Printf("Connected to %s successfully", backend)

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// Migrations are embedded in the binary, one directory per dialect
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	// Run goose command
	log.Printf("Running migrations: %s", command)
	switch command {
	case "up":
		if err := goose.Up(db, dialect); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed successfully")
	case "down":
		if err := goose.Down(db, dialect); err != nil {
			log.Fatalf("Failed to rollback migration: %v", err)
		}
		log.Println("Rollback completed successfully")
	case "status":
		if err := goose.Status(db, dialect); err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
	case "version":
		version, err := goose.GetDBVersion(db)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		log.Printf("Current migration version: %d", version)
	default:
		log.Fatalf("Unknown command: %s. Available commands: up, down, status, version", command)
	}
}

// open connects to the SQL backend named by STORAGE_BACKEND and returns its goose dialect
func open(backend string) (*sql.DB, string, error) {
	switch backend {
	case "sqlite":
		db, err := sql.Open("sqlite3", getEnv("SQLITE_PATH", "registros.db"))
		return db, migrations.DialectSQLite, err

	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, "", fmt.Errorf("DATABASE_URL is required for postgres")
		}
		db, err := sql.Open("postgres", dsn)
		return db, migrations.DialectPostgres, err

	case "clickhouse":
		port, err := strconv.Atoi(getEnv("CLICKHOUSE_PORT", "9000"))
		if err != nil {
			return nil, "", fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		db := clickhouse.OpenDB(ch.Options(
			getEnv("CLICKHOUSE_HOST", "localhost"),
			port,
			getEnv("CLICKHOUSE_DATABASE", "default"),
			getEnv("CLICKHOUSE_USER", "default"),
			getEnv("CLICKHOUSE_PASSWORD", ""),
			getEnv("CLICKHOUSE_USE_TLS", "false") == "true",
		))
		return db, migrations.DialectClickHouse, nil
	}
	return nil, "", fmt.Errorf("backend %q has no SQL migrations", backend)
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
