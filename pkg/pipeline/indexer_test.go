package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivechat/internal/models"
	"drivechat/pkg/splitter"
)

type fakeStore struct {
	ensured   []int
	upserts   [][]models.Chunk
	searched  [][]float32
	topKs     []int
	results   []models.SearchResult
	count     uint64
	countErr  error
	upsertErr error
	dropped   bool
}

func (f *fakeStore) EnsureCollection(_ context.Context, dimension int) error {
	f.ensured = append(f.ensured, dimension)
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, chunks []models.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	batch := make([]models.Chunk, len(chunks))
	copy(batch, chunks)
	f.upserts = append(f.upserts, batch)
	return nil
}

func (f *fakeStore) Search(_ context.Context, vector []float32, topK int) ([]models.SearchResult, error) {
	f.searched = append(f.searched, vector)
	f.topKs = append(f.topKs, topK)
	return f.results, nil
}

func (f *fakeStore) Count(_ context.Context) (uint64, error) {
	return f.count, f.countErr
}

func (f *fakeStore) Drop(_ context.Context) error {
	f.dropped = true
	return nil
}

func (f *fakeStore) Close() {}

type fakeEmbedder struct {
	dim     int
	batches [][]string
	queries []string
	failN   int // fail this many EmbedDocuments calls before succeeding
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.failN > 0 {
		f.failN--
		return nil, errors.New("transient embed failure")
	}
	f.batches = append(f.batches, texts)

	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	vec := make([]float32, f.dim)
	vec[0] = 1
	return vec, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func wordSplitter(t *testing.T, size, overlap int) *splitter.WordSplitter {
	t.Helper()
	split, err := splitter.NewWordSplitter(splitter.WordSplitterConfig{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return split
}

func TestIndexerRun(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 5, 0), IndexerConfig{})

	docs := []models.Document{{
		ID:      "doc-1",
		Name:    "notes.txt",
		Content: "one two three four five six seven",
	}}

	stats, err := indexer.Run(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DocumentsProcessed)
	assert.Equal(t, 0, stats.DocumentsSkipped)
	assert.Equal(t, 2, stats.ChunksCreated)
	assert.Equal(t, 0, stats.ChunksDeduplicated)
	assert.Equal(t, 2, stats.ChunksWritten)

	require.Len(t, store.upserts, 1)
	written := store.upserts[0]
	require.Len(t, written, 2)
	assert.Equal(t, "one two three four five", written[0].Content)
	assert.Equal(t, "six seven", written[1].Content)
	for _, chunk := range written {
		assert.Len(t, chunk.Vector, 4)
	}
}

func TestIndexerSkipsUnsupportedMime(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 5, 0), IndexerConfig{})

	docs := []models.Document{
		{ID: "img", Name: "photo.png", MimeType: "image/png", Content: "binary"},
		{ID: "txt", Name: "a.txt", MimeType: "text/plain", Content: "plain words"},
		{ID: "local", Name: "b.md", Content: "local file words"},
	}

	stats, err := indexer.Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsSkipped)
	assert.Equal(t, 2, stats.DocumentsProcessed)
}

func TestIndexerDeduplicatesChunks(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 50, 0), IndexerConfig{})

	docs := []models.Document{
		{ID: "a", Content: "identical short content"},
		{ID: "b", Content: "identical short content"},
	}

	stats, err := indexer.Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksCreated)
	assert.Equal(t, 1, stats.ChunksDeduplicated)
	assert.Equal(t, 1, stats.ChunksWritten)
}

func TestIndexerBatching(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}

	var progress [][2]int
	indexer := NewIndexer(store, embedder, wordSplitter(t, 1, 0), IndexerConfig{
		BatchSize: 2,
		OnProgress: func(done, total int) {
			progress = append(progress, [2]int{done, total})
		},
	})

	docs := []models.Document{{ID: "doc", Content: "alpha beta gamma delta epsilon"}}

	stats, err := indexer.Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ChunksWritten)

	require.Len(t, store.upserts, 3)
	assert.Len(t, store.upserts[0], 2)
	assert.Len(t, store.upserts[1], 2)
	assert.Len(t, store.upserts[2], 1)

	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
}

func TestIndexerEmptyInput(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 5, 0), IndexerConfig{})

	stats, err := indexer.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{}, stats)
	assert.Empty(t, store.upserts)
	assert.Empty(t, embedder.batches)
}

func TestIndexerCleansContent(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 10, 0), IndexerConfig{})

	docs := []models.Document{{ID: "doc", Content: "  hello \n\n  world  "}}

	_, err := indexer.Run(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "hello world", store.upserts[0][0].Content)
}

func TestIndexerRetriesEmbedding(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4, failN: 1}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 10, 0), IndexerConfig{})

	stats, err := indexer.Run(context.Background(), []models.Document{{ID: "doc", Content: "some words"}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksWritten)
	require.Len(t, embedder.batches, 1)
}

func TestIndexerEmbeddingFailureAborts(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{dim: 4, failN: 2} // both attempts fail
	indexer := NewIndexer(store, embedder, wordSplitter(t, 10, 0), IndexerConfig{})

	_, err := indexer.Run(context.Background(), []models.Document{{ID: "doc", Content: "some words"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding batch")
	assert.Empty(t, store.upserts)
}

func TestIndexerUpsertFailure(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("store down")}
	embedder := &fakeEmbedder{dim: 4}
	indexer := NewIndexer(store, embedder, wordSplitter(t, 10, 0), IndexerConfig{})

	_, err := indexer.Run(context.Background(), []models.Document{{ID: "doc", Content: "some words"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing batch")
}

func TestIndexerSetupAndInfo(t *testing.T) {
	store := &fakeStore{count: 42}
	indexer := NewIndexer(store, &fakeEmbedder{dim: 4}, wordSplitter(t, 5, 0), IndexerConfig{})

	require.NoError(t, indexer.Setup(context.Background(), 1024))
	assert.Equal(t, []int{1024}, store.ensured)

	info, err := indexer.Info(context.Background(), "documents", "http://localhost:6333")
	require.NoError(t, err)
	assert.Equal(t, CollectionInfo{Name: "documents", Documents: 42, URL: "http://localhost:6333"}, info)
}
