package store

import (
	"context"
	"errors"
	"fmt"

	"drivechat/internal/types"
	"drivechat/pkg/config"
)

// ErrCollectionMissing reports that the collection or table has not
// been created yet. Callers show a "run setup first" hint instead of a
// raw backend error.
var ErrCollectionMissing = errors.New("collection does not exist")

// New builds the vector store selected by the configuration. Qdrant is
// the default; pgvector is available for deployments that already run
// Postgres.
func New(ctx context.Context, cfg *config.Config) (types.VectorStore, error) {
	switch cfg.Store.Backend {
	case config.BackendQdrant:
		return NewQdrant(QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
		}), nil
	case config.BackendPgvector:
		return NewPgvector(ctx, PgvectorConfig{
			ConnString: cfg.Store.DatabaseURL,
			TableName:  cfg.Store.TableName,
			VectorDim:  cfg.Store.EmbeddingDim,
		})
	default:
		return nil, fmt.Errorf("unknown vector store backend: %q", cfg.Store.Backend)
	}
}
