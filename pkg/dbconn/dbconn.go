// Package dbconn opens bun database handles for the dialects this module
// supports: SQLite for tests and small deployments, Postgres for
// production.
package dbconn

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/zeebo/errs"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// OpenSQLite opens a SQLite database. Use ":memory:" (or a shared-cache
// memory DSN) for throwaway stores in tests.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	// The in-memory database disappears when its last connection closes,
	// so keep the pool pinned to a single connection.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres opens a Postgres database via lib/pq.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
