// Package store wraps a DuckDB database file as the table backend for the
// Silver and Gold layers. DuckDB gives the pipeline a transactional columnar
// table format with the three operations the layers need: overwrite a whole
// table inside one transaction, append rows, and read the latest snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rotisserie/eris"
)

// StorageError reports a table or file-level storage failure. Storage
// failures are stage-fatal: the orchestrator marks the run failed.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Table: table, Err: err}
}

// DB is a handle to the pipeline's DuckDB database.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the DuckDB database at path. The parent directory
// is created if missing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("open", path, err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, storageErr("open", path, err)
	}
	return &DB{sql: db}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ensure executes a CREATE TABLE IF NOT EXISTS (or similar idempotent) DDL.
func (d *DB) Ensure(ctx context.Context, ddl string) error {
	if _, err := d.sql.ExecContext(ctx, ddl); err != nil {
		return storageErr("ensure", firstWord(ddl), err)
	}
	return nil
}

// Overwrite atomically replaces the full content of table: within one
// transaction the prior snapshot is deleted and the given rows inserted.
// Readers never observe a partially replaced table.
func (d *DB) Overwrite(ctx context.Context, table, insertSQL string, rows [][]any) (int, error) {
	return d.write(ctx, table, insertSQL, rows, true)
}

// Append inserts rows without touching the existing snapshot.
func (d *DB) Append(ctx context.Context, table, insertSQL string, rows [][]any) (int, error) {
	return d.write(ctx, table, insertSQL, rows, false)
}

func (d *DB) write(ctx context.Context, table, insertSQL string, rows [][]any, truncate bool) (int, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin", table, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if truncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, storageErr("truncate", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, storageErr("prepare", table, err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, storageErr("insert", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit", table, err)
	}
	return len(rows), nil
}

// HasTable reports whether a table with a committed snapshot exists.
func (d *DB) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, storageErr("has_table", table, err)
	}
	return n > 0, nil
}

// CountRows returns the row count of a table.
func (d *DB) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, storageErr("count", table, err)
	}
	return n, nil
}

// Query runs an arbitrary read against the latest committed snapshot.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query")
	}
	return rows, nil
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\n' {
			return s[:i]
		}
	}
	return s
}
