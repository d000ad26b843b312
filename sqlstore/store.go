// Package sqlstore is a banyantask.Store over database/sql. The table is the
// queue: claims are single conditional UPDATE statements and every other
// transition runs in a transaction that re-reads the row before writing it.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	banyantask "github.com/banyancomputer/banyan-task"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavor.
type Dialect int

const (
	SQLite Dialect = iota + 1
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// ParseDialect maps a driver name from configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return 0, fmt.Errorf("sqlstore: unknown dialect %q", s)
}

// Store implements banyantask.Store on a relational database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	set     banyantask.StoreSettings
}

var _ banyantask.Store = (*Store)(nil)

// New wraps an open database. The caller still owns schema creation; see Migrate.
func New(db *sql.DB, d Dialect, opts ...banyantask.StoreOption) *Store {
	return &Store{db: db, dialect: d, set: banyantask.ResolveStoreOptions(opts...)}
}

// Open connects, pings and migrates.
func Open(ctx context.Context, d Dialect, dsn string, opts ...banyantask.StoreOption) (*Store, error) {
	if d == SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	s := New(db, d, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, opts ...banyantask.StoreOption) (*Store, error) {
	return Open(ctx, SQLite, path, opts...)
}

// OpenPostgres opens a Postgres database through pgx.
func OpenPostgres(ctx context.Context, dsn string, opts ...banyantask.StoreOption) (*Store, error) {
	return Open(ctx, Postgres, dsn, opts...)
}

// sqliteDSN adds the connection parameters the store relies on: writers
// wait on the lock instead of failing and transactions take the write lock
// at BEGIN.
func sqliteDSN(path string) string {
	if path == "" {
		path = "banyan.db"
	}
	params := []string{"_busy_timeout=5000", "_txlock=immediate", "_journal_mode=WAL"}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the SQL flavor in use.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
