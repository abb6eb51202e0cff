package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/stapelberg/postgrestest"
)

// EphemeralServer is a throwaway PostgreSQL instance for development
type EphemeralServer struct {
	server *postgrestest.Server
}

// Cleanup stops the server and removes its data directory
func (e *EphemeralServer) Cleanup() {
	if e.server != nil {
		e.server.Cleanup()
		logger().Info("Ephemeral PostgreSQL server cleaned up")
	}
}

// SetupEphemeralPostgresDatabase starts a temporary PostgreSQL and opens a fresh database on it
func SetupEphemeralPostgresDatabase() (*sql.DB, *EphemeralServer, error) {
	logger().Info("Starting ephemeral PostgreSQL server...")

	ctx := context.Background()

	// Uses a temporary directory by default for simplicity
	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start ephemeral postgres: %w", err)
	}
	server := &EphemeralServer{server: pgt}

	dsn, err := pgt.CreateDatabase(ctx)
	if err != nil {
		server.Cleanup()
		return nil, nil, fmt.Errorf("failed to create pagepack database: %w", err)
	}
	logger().Info("Created ephemeral database", "dsn", dsn)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		server.Cleanup()
		return nil, nil, fmt.Errorf("failed to open pagepack database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		server.Cleanup()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger().Info("Connected to ephemeral PostgreSQL database successfully")
	return db, server, nil
}
