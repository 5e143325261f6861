package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"drivechat/internal/models"
	"drivechat/pkg/extract"
)

type PgvectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// Pgvector keeps chunks in a Postgres table with a pgvector embedding
// column. One row per chunk, chunk ID as primary key, so re-indexing
// the same source overwrites in place.
type Pgvector struct {
	config PgvectorConfig
	pool   *pgxpool.Pool
}

func NewPgvector(ctx context.Context, config PgvectorConfig) (*Pgvector, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1024
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Pgvector{
		config: config,
		pool:   pool,
	}, nil
}

func (vs *Pgvector) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		dimension = vs.config.VectorDim
	}

	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_level TEXT,
			chunk_index INTEGER,
			chunk_start INTEGER,
			chunk_end INTEGER,
			content TEXT,
			content_hash TEXT,
			total_chunks INTEGER,
			parent_id TEXT,
			metadata JSONB,
			embedding vector(%d)
		)`, vs.config.TableName, dimension)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *Pgvector) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, chunk_level, chunk_index, chunk_start, chunk_end,
			content, content_hash, total_chunks, parent_id, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			chunk_start = EXCLUDED.chunk_start,
			chunk_end = EXCLUDED.chunk_end,
			total_chunks = EXCLUDED.total_chunks,
			parent_id = EXCLUDED.parent_id,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return fmt.Errorf("chunk %s has no vector", chunk.ID)
		}

		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.DocID,
			chunk.Level,
			chunk.Index,
			chunk.Start,
			chunk.End,
			extract.SanitizeUTF8(chunk.Content),
			chunk.ContentHash,
			chunk.TotalChunks,
			chunk.ParentID,
			chunk.Metadata,
			pgvector.NewVector(chunk.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *Pgvector) Search(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_level, chunk_index, chunk_start, chunk_end,
			content, content_hash, total_chunks, parent_id, metadata,
			1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.Chunk
		var score float32
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.Level,
			&chunk.Index,
			&chunk.Start,
			&chunk.End,
			&chunk.Content,
			&chunk.ContentHash,
			&chunk.TotalChunks,
			&chunk.ParentID,
			&chunk.Metadata,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, models.SearchResult{Chunk: chunk, Score: score})
	}
	return results, rows.Err()
}

func (vs *Pgvector) Count(ctx context.Context) (uint64, error) {
	var count uint64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
			return 0, ErrCollectionMissing
		}
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (vs *Pgvector) Drop(ctx context.Context) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

func (vs *Pgvector) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}
