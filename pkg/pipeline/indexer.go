package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"drivechat/internal/models"
	"drivechat/internal/types"
	"drivechat/pkg/splitter"
)

// supportedMimeTypes mirrors the Drive loader's list. Documents with a
// MIME type outside it are skipped; documents without one pass through.
var supportedMimeTypes = map[string]bool{
	"text/plain":                           true,
	"application/pdf":                      true,
	"application/vnd.google-apps.document": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

type IndexStats struct {
	DocumentsProcessed int
	DocumentsSkipped   int
	ChunksCreated      int
	ChunksDeduplicated int
	ChunksWritten      int
}

type CollectionInfo struct {
	Name      string
	Documents uint64
	URL       string
}

type IndexerConfig struct {
	BatchSize  int
	OnProgress func(done, total int) // called after each written batch
}

// Indexer runs documents through clean, split, embed, and write stages.
type Indexer struct {
	config   IndexerConfig
	store    types.VectorStore
	embedder types.Embedder
	split    types.Splitter
}

func NewIndexer(store types.VectorStore, embedder types.Embedder, split types.Splitter, config IndexerConfig) *Indexer {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	return &Indexer{
		config:   config,
		store:    store,
		embedder: embedder,
		split:    split,
	}
}

// Setup makes sure the store's collection exists with the given vector
// dimension.
func (ix *Indexer) Setup(ctx context.Context, dimension int) error {
	return ix.store.EnsureCollection(ctx, dimension)
}

// Info reports the state of the collection behind the store.
func (ix *Indexer) Info(ctx context.Context, name, url string) (CollectionInfo, error) {
	count, err := ix.store.Count(ctx)
	if err != nil {
		return CollectionInfo{Name: name, URL: url}, err
	}
	return CollectionInfo{Name: name, Documents: count, URL: url}, nil
}

// Run indexes documents. Chunks repeating an already-seen content hash
// within the run are written once. Re-running over unchanged input
// produces the same chunk IDs, so existing points are overwritten
// rather than duplicated.
func (ix *Indexer) Run(ctx context.Context, documents []models.Document) (IndexStats, error) {
	var stats IndexStats

	kept := make([]models.Document, 0, len(documents))
	for _, doc := range documents {
		if doc.MimeType != "" && !supportedMimeTypes[doc.MimeType] {
			log.Debug().Str("name", doc.Name).Str("mime_type", doc.MimeType).Msg("skipping unsupported document")
			stats.DocumentsSkipped++
			continue
		}
		doc.Content = splitter.Clean(doc.Content)
		kept = append(kept, doc)
	}
	stats.DocumentsProcessed = len(kept)
	if len(kept) == 0 {
		return stats, nil
	}

	chunks, err := ix.split.SplitDocuments(kept)
	if err != nil {
		return stats, err
	}
	stats.ChunksCreated = len(chunks)

	seen := make(map[string]bool, len(chunks))
	unique := chunks[:0]
	for _, chunk := range chunks {
		if seen[chunk.ContentHash] {
			stats.ChunksDeduplicated++
			continue
		}
		seen[chunk.ContentHash] = true
		unique = append(unique, chunk)
	}
	chunks = unique

	for start := 0; start < len(chunks); start += ix.config.BatchSize {
		end := min(start+ix.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := ix.embedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embedding batch at chunk %d: %w", start, err)
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}

		if err := ix.store.Upsert(ctx, batch); err != nil {
			return stats, fmt.Errorf("writing batch at chunk %d: %w", start, err)
		}
		stats.ChunksWritten += len(batch)

		if ix.config.OnProgress != nil {
			ix.config.OnProgress(end, len(chunks))
		}
	}

	log.Info().
		Int("documents", stats.DocumentsProcessed).
		Int("skipped", stats.DocumentsSkipped).
		Int("chunks", stats.ChunksWritten).
		Int("deduplicated", stats.ChunksDeduplicated).
		Msg("indexing complete")
	return stats, nil
}

// embedBatch retries once so a transient embedding failure does not
// abort a long indexing run.
func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	log.Warn().Err(err).Msg("embedding failed, retrying")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return ix.embedder.EmbedDocuments(ctx, texts)
}
