// Package duck wraps the DuckDB engine behind an explicitly owned handle with
// a defined open/close lifecycle, so every pipeline component receives the
// same database rather than reaching for a hidden global connection.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

type DB interface {
	Catalog() string
	Schema() string
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// LocalDB is a DuckDB database backed by a local file, or in-memory when the
// path is empty.
type LocalDB struct {
	log     *slog.Logger
	db      *sql.DB
	catalog string
	schema  string
}

type localConn struct {
	conn *sql.Conn
	db   *LocalDB
}

// NewDB opens a DuckDB database at path. An empty path opens an in-memory
// database, which is what the ingest and summary paths use since their state
// lives in Parquet files rather than in the catalog.
func NewDB(ctx context.Context, log *slog.Logger, path string) (*LocalDB, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for database: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = abs
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	var catalog, schema string
	if err := row.Scan(&catalog, &schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	return &LocalDB{
		log:     log,
		db:      db,
		catalog: catalog,
		schema:  schema,
	}, nil
}

func (d *LocalDB) Catalog() string {
	return d.catalog
}

func (d *LocalDB) Schema() string {
	return d.schema
}

func (d *LocalDB) Close() error {
	return d.db.Close()
}

func (d *LocalDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &localConn{conn: conn, db: d}, nil
}

func (c *localConn) DB() DB {
	return c.db
}

func (c *localConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *localConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *localConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *localConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *localConn) Close() error {
	return c.conn.Close()
}

// QuotePath escapes a filesystem path for embedding in a single-quoted SQL
// string literal.
func QuotePath(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, path[i])
	}
	return string(out)
}
