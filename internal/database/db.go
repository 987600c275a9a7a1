// Package database provides the sqlite connection used by the report
// store, the config DB backend, and the provider TTL caches.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo
)

// DB wraps a sqlite connection tuned for a long-running server process.
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database connection configuration.
type Config struct {
	Path string
	Name string // friendly name for logging
}

// New opens a sqlite database, creating its parent directory if needed,
// with WAL mode and a connection pool sized for a single-process server.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	connStr := cfg.Path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, name: cfg.Name}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying *sql.DB for use by repositories.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the database's friendly name.
func (db *DB) Name() string { return db.name }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Migrate applies the given schema statement, idempotently (CREATE TABLE
// IF NOT EXISTS). Each caller owns its own schema string.
func (db *DB) Migrate(schema string) error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", db.name, err)
	}
	return nil
}
