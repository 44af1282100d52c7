package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmbeddingDimensions is the vector size of the findings collection.
const EmbeddingDimensions = 1536

// PostgresDB wraps the database connection pool
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// NewPostgresDB connects to databaseURL and verifies the connection.
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

var collectionNameRe = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// ValidCollectionName reports whether name is usable as a table name.
func ValidCollectionName(name string) bool {
	return collectionNameRe.MatchString(name)
}

// EnsureCollection installs pgvector and creates the table that holds the
// indexed finding chunks of the given collection.
func (db *PostgresDB) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if !ValidCollectionName(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to install pgvector: %w", err)
	}

	table := pgx.Identifier{name}.Sanitize()
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, table, dimension)
	if _, err := db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	jobIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'job_id'))`,
		pgx.Identifier{name + "_job_idx"}.Sanitize(), table)
	if _, err := db.Pool.Exec(ctx, jobIndex); err != nil {
		return fmt.Errorf("failed to create job index on %s: %w", name, err)
	}

	// HNSW supports at most 2000 dimensions; larger vectors fall back to exact search.
	if dimension <= 2000 {
		vecIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{name + "_embedding_idx"}.Sanitize(), table)
		if _, err := db.Pool.Exec(ctx, vecIndex); err != nil {
			return fmt.Errorf("failed to create vector index on %s: %w", name, err)
		}
	}
	return nil
}
