package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const itemsSchema = `
CREATE TABLE IF NOT EXISTS cdom_items (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQL keeps items in a single table. Any database/sql driver with upsert
// support works; OpenSQLite wires the sqlite3 driver.
type SQL struct {
	db      *sql.DB
	ownsDB  bool
	baseCtx context.Context
}

// OpenSQLite opens (creating if needed) a sqlite database at dsn.
func OpenSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQL(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQL uses an existing handle, creating the items table if missing.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, itemsSchema); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQL{db: db, baseCtx: ctx}, nil
}

func (s *SQL) GetItem(name string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(s.baseCtx, `SELECT value FROM cdom_items WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item %q: %w", name, err)
	}
	return v, true, nil
}

func (s *SQL) SetItem(name, value string) error {
	if name == "" {
		return ErrEmptyName
	}
	_, err := s.db.ExecContext(s.baseCtx, `
		INSERT INTO cdom_items (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("set item %q: %w", name, err)
	}
	return nil
}

// Names lists stored item names in order.
func (s *SQL) Names() ([]string, error) {
	rows, err := s.db.QueryContext(s.baseCtx, `SELECT name FROM cdom_items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Close releases the database when this store opened it.
func (s *SQL) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
