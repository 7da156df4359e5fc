package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is the SQLite data access layer for the class index.
type Store struct {
	db *sql.DB
	q  Querier // db, or the transaction of a scoped Store
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside one write transaction. Every method called on
// txStore uses the transaction; readers observe either none or all of its
// effects. The receiver is never mutated.
func (s *Store) WithTransaction(ctx context.Context, fn func(txStore *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithReadTransaction runs fn against a read-only snapshot of the database.
func (s *Store) WithReadTransaction(ctx context.Context, fn func(snap *Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(&Store{db: s.db, q: tx})
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  key             TEXT NOT NULL UNIQUE,
  path            TEXT NOT NULL,
  hash            TEXT NOT NULL,
  last_indexed    TIMESTAMP
);

-- parent_id is a weak reference: no foreign key, a removed parent flips its
-- dependents back to pending instead of cascading.
CREATE TABLE IF NOT EXISTS classes (
  id                    INTEGER PRIMARY KEY,
  file                  TEXT NOT NULL,
  name                  TEXT NOT NULL,
  parent_id             INTEGER,
  parent_unknown        BOOLEAN NOT NULL DEFAULT FALSE,
  expected_parent       TEXT,
  expected_parent_file  TEXT,
  UNIQUE (file, name)
);

CREATE TABLE IF NOT EXISTS methods (
  id              INTEGER PRIMARY KEY,
  class_id        INTEGER NOT NULL REFERENCES classes(id),
  name            TEXT NOT NULL,
  UNIQUE (class_id, name)
);

CREATE TABLE IF NOT EXISTS global_statements (
  id              INTEGER PRIMARY KEY,
  file            TEXT NOT NULL,
  text            TEXT NOT NULL
);

-- Tag tables share one shape per owner kind.

CREATE TABLE IF NOT EXISTS class_tags (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES classes(id),
  idx             INTEGER NOT NULL,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS class_tag_args (
  id              INTEGER PRIMARY KEY,
  tag_id          INTEGER NOT NULL REFERENCES class_tags(id),
  idx             INTEGER NOT NULL,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS method_tags (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES methods(id),
  idx             INTEGER NOT NULL,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS method_tag_args (
  id              INTEGER PRIMARY KEY,
  tag_id          INTEGER NOT NULL REFERENCES method_tags(id),
  idx             INTEGER NOT NULL,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS global_statement_tags (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES global_statements(id),
  idx             INTEGER NOT NULL,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS global_statement_tag_args (
  id              INTEGER PRIMARY KEY,
  tag_id          INTEGER NOT NULL REFERENCES global_statement_tags(id),
  idx             INTEGER NOT NULL,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classes_file ON classes(file);
CREATE INDEX IF NOT EXISTS idx_classes_parent ON classes(parent_id);
CREATE INDEX IF NOT EXISTS idx_classes_expected ON classes(expected_parent, expected_parent_file);
CREATE INDEX IF NOT EXISTS idx_methods_class ON methods(class_id);
CREATE INDEX IF NOT EXISTS idx_global_statements_file ON global_statements(file);
CREATE INDEX IF NOT EXISTS idx_class_tags_owner ON class_tags(owner_id);
CREATE INDEX IF NOT EXISTS idx_class_tag_args_tag ON class_tag_args(tag_id);
CREATE INDEX IF NOT EXISTS idx_method_tags_owner ON method_tags(owner_id);
CREATE INDEX IF NOT EXISTS idx_method_tag_args_tag ON method_tag_args(tag_id);
CREATE INDEX IF NOT EXISTS idx_global_statement_tags_owner ON global_statement_tags(owner_id);
CREATE INDEX IF NOT EXISTS idx_global_statement_tag_args_tag ON global_statement_tag_args(tag_id);
CREATE INDEX IF NOT EXISTS idx_global_statement_tags_name ON global_statement_tags(name);
`
