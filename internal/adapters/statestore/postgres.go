package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const defaultTable = "workloop_state"

// Postgres keeps documents in one table keyed by name with a version column.
type Postgres struct {
	db    *sql.DB
	table string
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithTable overrides the state table name.
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		if name != "" {
			p.table = name
		}
	}
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres opens dsn with the lib/pq driver and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewPostgres(db, opts...), nil
}

// Migrate creates the state table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pq.QuoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate state table: %w", err)
	}
	return nil
}

// Load implements Store.
func (p *Postgres) Load(ctx context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT doc, version FROM %s WHERE key = $1`, pq.QuoteIdentifier(p.table))
	var (
		doc     []byte
		version int64
	)
	err := p.db.QueryRowContext(ctx, query, key).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", key, err)
	}
	return doc, version, nil
}

// Save implements Store. Version 0 inserts; anything else is a guarded update.
func (p *Postgres) Save(ctx context.Context, key string, doc []byte, expected int64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	table := pq.QuoteIdentifier(p.table)

	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		query := fmt.Sprintf(`
			INSERT INTO %s (key, doc, version, updated_at)
			VALUES ($1, $2, 1, now())
			ON CONFLICT (key) DO NOTHING`, table)
		res, err = p.db.ExecContext(ctx, query, key, doc)
	} else {
		query := fmt.Sprintf(`
			UPDATE %s SET doc = $1, version = $2, updated_at = now()
			WHERE key = $3 AND version = $4`, table)
		res, err = p.db.ExecContext(ctx, query, doc, expected+1, key, expected)
	}
	if err != nil {
		return false, fmt.Errorf("save %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save %s: rows affected: %w", key, err)
	}
	return n == 1, nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}
