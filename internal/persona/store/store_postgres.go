package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reniec/internal/persona"
	"reniec/internal/platform/config"
)

// PostgresStore keeps the registry in PostgreSQL behind a pgx pool. Broken
// connections heal on the next acquire, so a database restart does not
// require a server restart.
type PostgresStore struct {
	pool *pgxpool.Pool
	boot bootstrap
}

// OpenPostgres connects to the database named by cfg.PostgresDSN and verifies
// it is reachable before returning.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	boot, err := loadBootstrap("postgres")
	if err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	pcfg.MaxConns = int32(cfg.PoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, boot: boot}, nil
}

// InitializeSchema creates and seeds the personas table unless it already
// exists. Schema and seed run inside one transaction.
func (s *PostgresStore) InitializeSchema(ctx context.Context) error {
	exists, err := s.tableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bootstrap transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range append(append([]string{}, s.boot.Schema...), s.boot.Seed...) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func (s *PostgresStore) tableExists(ctx context.Context) (bool, error) {
	// Unquoted identifiers fold to lower case, so the catalog name to match
	// is exactly "personas".
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'personas'
	)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q).Scan(&exists); err != nil {
		return false, fmt.Errorf("check personas table: %w", err)
	}
	return exists, nil
}

// FindByDNI looks up one record inside a read-only transaction that is
// always rolled back, keeping pooled connections free of lingering
// transaction state.
func (s *PostgresStore) FindByDNI(ctx context.Context, dni string) (*persona.Person, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin lookup transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT * FROM personas WHERE dni = $1`, dni)
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

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("scan persona: %w", err)
	}
	return personFromRow(columns, values), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
