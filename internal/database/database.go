package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stwalsh4118/urbex/api/internal/config"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Database wraps the canonical store connection for either supported driver.
// DB is always set; Pool is only set for PostgreSQL.
type Database struct {
	DB     *sql.DB
	Pool   *pgxpool.Pool
	Driver string
}

// Open connects to the store selected by cfg.Driver and verifies the
// connection before returning.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresPool(ctx, cfg)
	case config.DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate applies the embedded schema for the connected driver. Every
// statement is idempotent, so Migrate is safe to run on each start.
func (db *Database) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + db.Driver + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read %s schema: %w", db.Driver, err)
	}

	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *Database) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Close closes the sql handle and, for PostgreSQL, the underlying pool.
func (db *Database) Close() {
	if db.DB != nil {
		db.DB.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Stats returns connection statistics for monitoring.
func (db *Database) Stats() sql.DBStats {
	return db.DB.Stats()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
