package repository

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stwalsh4118/urbex/api/internal/config"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// dialect captures the differences between the supported SQL backends.
// Queries are written with PostgreSQL $N placeholders and rebound per driver.
type dialect struct {
	name              string
	rebind            func(query string) string
	forUpdate         string
	isUniqueViolation func(err error) bool
}

var postgresDialect = dialect{
	name:      config.DriverPostgres,
	rebind:    func(q string) string { return q },
	forUpdate: " FOR UPDATE",
	isUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
}

// SQLite takes numbered ?N parameters and has no row locks; its single
// writer connection serializes transactions instead.
var sqliteDialect = dialect{
	name:      config.DriverSQLite,
	rebind:    func(q string) string { return placeholderPattern.ReplaceAllString(q, "?$1") },
	forUpdate: "",
	isUniqueViolation: func(err error) bool {
		var sqliteErr sqlite3.Error
		return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

func dialectFor(driver string) dialect {
	if driver == config.DriverPostgres {
		return postgresDialect
	}
	return sqliteDialect
}

// translate maps driver errors onto repository sentinels.
func (d dialect) translate(err error) error {
	if err != nil && d.isUniqueViolation(err) {
		return errors.Join(ErrConflict, err)
	}
	return err
}
