package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	// VectorDim fixes the column dimension. Zero leaves it unconstrained so
	// one table can hold vectors from several models.
	VectorDim int
	BatchSize int
}

// VectorStore persists embeddings in Postgres with pgvector, keyed by
// embed.CacheKey. It implements types.EmbeddingCache.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "facility_embeddings"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	column := "vector"
	if vs.config.VectorDim > 0 {
		column = fmt.Sprintf("vector(%d)", vs.config.VectorDim)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			embedding %s NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.TableName, column)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Get returns the cached vectors for the keys that are present.
func (vs *VectorStore) Get(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT key, embedding FROM %s WHERE key = ANY($1)`, vs.config.TableName)
	rows, err := vs.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var vec pgvector.Vector
		if err := rows.Scan(&key, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[key] = vec.Slice()
	}
	return out, rows.Err()
}

// Put upserts entries in batches, one transaction per batch.
func (vs *VectorStore) Put(ctx context.Context, entries map[string][]float32) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (key, embedding)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_at = now()`,
		vs.config.TableName)

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, sanitizeUTF8(k))
	}

	for start := 0; start < len(keys); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(keys))
		if err := vs.putBatch(ctx, stmt, keys[start:end], entries); err != nil {
			return err
		}
	}
	return nil
}

func (vs *VectorStore) putBatch(ctx context.Context, stmt string, keys []string, entries map[string][]float32) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, k := range keys {
		if _, err := tx.Exec(ctx, stmt, k, pgvector.NewVector(entries[k])); err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
