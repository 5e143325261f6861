package types

import (
	"context"

	"drivechat/internal/models"
)

// Embedder turns text into vectors. Implementations batch requests
// themselves; callers hand over whole slices.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorStore is the persistence layer behind the indexing and query
// pipelines. Upsert must be idempotent: writing the same chunk twice
// leaves one point behind.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error)
	Count(ctx context.Context) (uint64, error)
	Drop(ctx context.Context) error
	Close()
}

// Generator produces an answer from a question and retrieved context.
type Generator interface {
	Generate(ctx context.Context, question string, results []models.SearchResult) (string, error)
	Stream(ctx context.Context, question string, results []models.SearchResult, fn func(chunk string)) (string, error)
}

// Splitter breaks documents into chunks ready for embedding.
type Splitter interface {
	SplitDocuments(docs []models.Document) ([]models.Chunk, error)
}
