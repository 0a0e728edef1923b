package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stwalsh4118/urbex/api/internal/config"
)

// MemoryPath opens a private in-memory SQLite store.
const MemoryPath = ":memory:"

// SQLiteDSN builds the go-sqlite3 DSN for path with foreign keys enforced.
// File stores also run in WAL mode with a busy timeout.
func SQLiteDSN(path string) string {
	if path == MemoryPath {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// NewSQLite opens the SQLite store at path, creating its directory if
// needed. The handle is limited to one connection: SQLite allows a single
// writer, and an in-memory database lives only as long as its connection.
func NewSQLite(ctx context.Context, path string) (*Database, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, Driver: config.DriverSQLite}, nil
}
