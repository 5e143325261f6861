package pipeline

import (
	"context"
	"fmt"

	"drivechat/internal/models"
	"drivechat/internal/types"
)

type QueryResult struct {
	Query   string
	Answer  string
	Sources []models.SearchResult
}

// Querier answers questions against the indexed collection: embed the
// question, retrieve the closest chunks, generate over them. Retrieval
// coming back empty still generates; the prompt tells the model to say
// the documents did not cover it.
type Querier struct {
	store     types.VectorStore
	embedder  types.Embedder
	generator types.Generator
	topK      int
}

func NewQuerier(store types.VectorStore, embedder types.Embedder, generator types.Generator, topK int) *Querier {
	if topK <= 0 {
		topK = 5
	}
	return &Querier{
		store:     store,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
	}
}

func (q *Querier) Query(ctx context.Context, question string, topK int) (QueryResult, error) {
	result, sources, err := q.retrieve(ctx, question, topK)
	if err != nil {
		return result, err
	}

	answer, err := q.generator.Generate(ctx, question, sources)
	if err != nil {
		return result, err
	}
	result.Answer = answer
	return result, nil
}

// QueryStream is Query with the answer streamed chunk by chunk to fn
// as the model produces it.
func (q *Querier) QueryStream(ctx context.Context, question string, topK int, fn func(chunk string)) (QueryResult, error) {
	result, sources, err := q.retrieve(ctx, question, topK)
	if err != nil {
		return result, err
	}

	answer, err := q.generator.Stream(ctx, question, sources, fn)
	if err != nil {
		return result, err
	}
	result.Answer = answer
	return result, nil
}

func (q *Querier) retrieve(ctx context.Context, question string, topK int) (QueryResult, []models.SearchResult, error) {
	if topK <= 0 {
		topK = q.topK
	}
	result := QueryResult{Query: question}

	vector, err := q.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return result, nil, fmt.Errorf("embedding question: %w", err)
	}

	sources, err := q.store.Search(ctx, vector, topK)
	if err != nil {
		return result, nil, fmt.Errorf("searching store: %w", err)
	}
	result.Sources = sources
	return result, sources, nil
}
