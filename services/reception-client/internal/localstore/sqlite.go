package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	value      BLOB NOT NULL,
	PRIMARY KEY (collection, key)
);
CREATE TABLE IF NOT EXISTS record_index (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (collection, key, name)
);
CREATE INDEX IF NOT EXISTS record_index_lookup ON record_index (collection, name, value);
`

// SQLiteBackend persists records in an embedded SQLite file on the device.
type SQLiteBackend struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func (b *SQLiteBackend) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return sqliteOps{b.db}.Get(ctx, collection, key)
}

// Put writes the record and its index rows in one transaction.
func (b *SQLiteBackend) Put(ctx context.Context, collection, key string, value []byte, index map[string]string) error {
	return b.Atomic(ctx, func(o Ops) error { return o.Put(ctx, collection, key, value, index) })
}

func (b *SQLiteBackend) Delete(ctx context.Context, collection, key string) error {
	return b.Atomic(ctx, func(o Ops) error { return o.Delete(ctx, collection, key) })
}

func (b *SQLiteBackend) QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error) {
	return sqliteOps{b.db}.QueryByIndex(ctx, collection, name, value)
}

func (b *SQLiteBackend) Atomic(ctx context.Context, fn func(Ops) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(sqliteOps{tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteOps struct {
	q execQuerier
}

func (o sqliteOps) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	var value []byte
	err := o.q.QueryRowContext(ctx, `SELECT value FROM records WHERE collection = ? AND key = ?`, collection, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (o sqliteOps) Put(ctx context.Context, collection, key string, value []byte, index map[string]string) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO records (collection, key, seq, value)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records), ?)
		ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value
	`, collection, key, value)
	if err != nil {
		return err
	}
	if _, err := o.q.ExecContext(ctx, `DELETE FROM record_index WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return err
	}
	for name, v := range index {
		if _, err := o.q.ExecContext(ctx, `
			INSERT INTO record_index (collection, key, name, value) VALUES (?, ?, ?, ?)
		`, collection, key, name, v); err != nil {
			return err
		}
	}
	return nil
}

func (o sqliteOps) Delete(ctx context.Context, collection, key string) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM record_index WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return err
	}
	_, err := o.q.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, collection, key)
	return err
}

func (o sqliteOps) QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if name == "" {
		rows, err = o.q.QueryContext(ctx, `SELECT value FROM records WHERE collection = ? ORDER BY seq`, collection)
	} else {
		rows, err = o.q.QueryContext(ctx, `
			SELECT r.value
			FROM records r
			JOIN record_index i ON i.collection = r.collection AND i.key = r.key
			WHERE r.collection = ? AND i.name = ? AND i.value = ?
			ORDER BY r.seq
		`, collection, name, value)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
