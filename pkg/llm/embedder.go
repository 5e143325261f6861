package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Model     string
	BaseURL   string
	BatchSize int
	// Dimension pins the expected vector size. Zero means adopt
	// whatever the model returns on first use.
	Dimension int
}

// Embedder wraps an Ollama embedding model. Requests are batched by
// the underlying embedder, BatchSize texts per round trip.
type Embedder struct {
	config   EmbedderConfig
	embedder *embeddings.EmbedderImpl
}

func NewEmbedder(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "mxbai-embed-large"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return NewEmbedderWithClient(client, config)
}

// NewEmbedderWithClient builds an Embedder on a caller-supplied
// embedding client. Tests inject fakes here.
func NewEmbedderWithClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
	}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), connectionHint(err, e.config.BaseURL))
	}

	for i, vec := range vectors {
		if err := e.checkDimension(len(vec)); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", connectionHint(err, e.config.BaseURL))
	}
	if err := e.checkDimension(len(vector)); err != nil {
		return nil, err
	}
	return vector, nil
}

// Dimension reports the expected vector size, 0 until known.
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

func (e *Embedder) checkDimension(got int) error {
	if e.config.Dimension == 0 {
		e.config.Dimension = got
		return nil
	}
	if got != e.config.Dimension {
		return fmt.Errorf("embedding dimension mismatch: model %q returned %d, expected %d",
			e.config.Model, got, e.config.Dimension)
	}
	return nil
}
