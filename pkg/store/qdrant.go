package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"drivechat/internal/models"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Qdrant is a minimal REST client to a Qdrant server. Cosine distance
// only. Point IDs are UUIDv5 hashes of the chunk ID, which Qdrant
// accepts and which make upserts idempotent.
type Qdrant struct {
	config QdrantConfig
	client *http.Client
}

func NewQdrant(config QdrantConfig) *Qdrant {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Qdrant{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// PointID maps a chunk ID onto the UUID space Qdrant requires for
// point IDs. Deterministic: the same chunk always lands on the same
// point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dimension)
	}

	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s", q.config.URL, q.config.Collection), body)
}

func (q *Qdrant) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return fmt.Errorf("chunk %s has no vector", chunk.ID)
		}
		points[i] = map[string]any{
			"id":      PointID(chunk.ID),
			"vector":  chunk.Vector,
			"payload": payloadFor(chunk),
		}
	}

	body := map[string]any{"points": points}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.config.URL, q.config.Collection), body)
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", q.config.URL, q.config.Collection)
	if err := q.postJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, models.SearchResult{
			Chunk: chunkFromPayload(r.Payload),
			Score: r.Score,
		})
	}
	return results, nil
}

func (q *Qdrant) Count(ctx context.Context) (uint64, error) {
	url := fmt.Sprintf("%s/collections/%s", q.config.URL, q.config.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrCollectionMissing
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant GET %s failed: %s", url, resp.Status)
	}

	var out struct {
		Result struct {
			PointsCount uint64 `json:"points_count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Result.PointsCount, nil
}

func (q *Qdrant) Drop(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", q.config.URL, q.config.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE %s failed: %s", url, resp.Status)
	}
	return nil
}

func (q *Qdrant) Close() {}

func (q *Qdrant) collectionExists(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/collections/%s", q.config.URL, q.config.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("qdrant GET %s failed: %s", url, resp.Status)
	}
}

func payloadFor(chunk models.Chunk) map[string]any {
	return map[string]any{
		"chunk_id":     chunk.ID,
		"doc_id":       chunk.DocID,
		"chunk_level":  chunk.Level,
		"chunk_index":  chunk.Index,
		"chunk_start":  chunk.Start,
		"chunk_end":    chunk.End,
		"content":      chunk.Content,
		"content_hash": chunk.ContentHash,
		"total_chunks": chunk.TotalChunks,
		"parent_id":    chunk.ParentID,
		"metadata":     chunk.Metadata,
	}
}

func chunkFromPayload(payload map[string]any) models.Chunk {
	chunk := models.Chunk{}
	if v, ok := payload["chunk_id"].(string); ok {
		chunk.ID = v
	}
	if v, ok := payload["doc_id"].(string); ok {
		chunk.DocID = v
	}
	if v, ok := payload["chunk_level"].(string); ok {
		chunk.Level = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		chunk.Index = int(v)
	}
	if v, ok := payload["chunk_start"].(float64); ok {
		chunk.Start = int(v)
	}
	if v, ok := payload["chunk_end"].(float64); ok {
		chunk.End = int(v)
	}
	if v, ok := payload["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := payload["content_hash"].(string); ok {
		chunk.ContentHash = v
	}
	if v, ok := payload["total_chunks"].(float64); ok {
		chunk.TotalChunks = int(v)
	}
	if v, ok := payload["parent_id"].(string); ok {
		chunk.ParentID = v
	}
	if v, ok := payload["metadata"].(map[string]any); ok {
		chunk.Metadata = v
	}
	return chunk
}

func (q *Qdrant) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.config.APIKey != "" {
		req.Header.Set("api-key", q.config.APIKey)
	}
}

func (q *Qdrant) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (q *Qdrant) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
