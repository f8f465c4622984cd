package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"reniec/internal/persona"
	"reniec/internal/platform/config"
)

// SQLiteStore keeps the registry in a single local database file. It is the
// zero-infrastructure backend for development and small deployments.
type SQLiteStore struct {
	db   *sql.DB
	boot bootstrap
}

// OpenSQLite opens (creating if needed) the database file at cfg.SQLitePath.
// The parent directory is created on demand so a fresh checkout can start
// with no setup.
func OpenSQLite(ctx context.Context, cfg config.StoreConfig) (*SQLiteStore, error) {
	boot, err := loadBootstrap("sqlite")
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)

	// WAL keeps readers unblocked during the bootstrap write; busy_timeout
	// rides out checkpoints instead of surfacing SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return &SQLiteStore{db: db, boot: boot}, nil
}

// InitializeSchema creates and seeds the personas table unless it already
// exists. Schema and seed run inside one transaction, so a failed bootstrap
// leaves no half-provisioned table behind.
func (s *SQLiteStore) InitializeSchema(ctx context.Context) error {
	exists, err := s.tableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range append(append([]string{}, s.boot.Schema...), s.boot.Seed...) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func (s *SQLiteStore) tableExists(ctx context.Context) (bool, error) {
	const q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'personas'`
	var name string
	err := s.db.QueryRowContext(ctx, q).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check personas table: %w", err)
	}
	return true, nil
}

// FindByDNI looks up one record. The read runs in a transaction that is
// always rolled back, so the pooled connection never carries state between
// lookups.
func (s *SQLiteStore) FindByDNI(ctx context.Context, dni string) (*persona.Person, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lookup transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT * FROM personas WHERE dni = ?`, dni)
	if err != nil {
		return nil, fmt.Errorf("query persona: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query persona: %w", err)
		}
		return nil, ErrNotFound
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read persona columns: %w", err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan persona: %w", err)
	}
	return personFromRow(columns, values), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}
