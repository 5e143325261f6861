package splitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"drivechat/internal/models"
)

// WordSplitterConfig controls flat splitting. Sizes are in words.
type WordSplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// WordSplitter produces fixed-size overlapping word windows. Chunk IDs
// are derived from the document ID and window index, so re-splitting an
// unchanged document yields the same IDs.
type WordSplitter struct {
	config WordSplitterConfig
}

func NewWordSplitter(config WordSplitterConfig) (*WordSplitter, error) {
	// A zero config gets the stock 500/50 window. Callers that size
	// chunks themselves keep overlap exactly as given, including zero.
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = 50
		}
	}
	if config.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", config.ChunkSize, config.ChunkOverlap)
	}
	return &WordSplitter{config: config}, nil
}

func (s *WordSplitter) SplitDocuments(docs []models.Document) ([]models.Chunk, error) {
	var all []models.Chunk
	for _, doc := range docs {
		words := strings.Fields(doc.Content)
		if len(words) == 0 {
			continue
		}

		docID := docIDFor(doc)
		chunks := createChunks(words, s.config.ChunkSize, s.config.ChunkOverlap, "", docID, doc)
		all = append(all, chunks...)
	}
	return all, nil
}

// Clean collapses runs of whitespace into single spaces so word offsets
// computed by the splitters stay aligned with the stored content.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// createChunks windows words into chunks of chunkSize stepping by
// chunkSize-overlap, stamping word offsets and the per-level chunk
// count. Level may be empty for flat splitting.
func createChunks(words []string, chunkSize, overlap int, level, docID string, doc models.Document) []models.Chunk {
	var chunks []models.Chunk
	total := len(words)

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	index := 0
	for start := 0; start < total; start += step {
		end := start + chunkSize
		if end > total {
			end = total
		}

		content := strings.Join(words[start:end], " ")
		chunks = append(chunks, models.Chunk{
			ID:          chunkIDFor(docID, level, index),
			DocID:       docID,
			Level:       level,
			Index:       index,
			Start:       start,
			End:         end,
			Content:     content,
			ContentHash: HashContent(content),
			Metadata:    chunkMetadata(doc),
		})
		index++

		if end >= total {
			break
		}
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// docIDFor prefers the loader-assigned ID, which is stable across runs
// (Drive file ID, repository relative path). The content-hash fallback
// keeps ad-hoc documents addressable without one.
func docIDFor(doc models.Document) string {
	if doc.ID != "" {
		return doc.ID
	}
	return "doc_" + HashContent(doc.Content)[:8]
}

func chunkIDFor(docID, level string, index int) string {
	if level == "" {
		return fmt.Sprintf("%s_%d", docID, index)
	}
	return fmt.Sprintf("%s_%s_%d", docID, level, index)
}

// HashContent returns the hex SHA-256 of text. Used both for dedup keys
// and for fallback document IDs.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// chunkMetadata flattens the document identity into each chunk's
// payload so retrieval can show sources without a second lookup.
func chunkMetadata(doc models.Document) map[string]interface{} {
	meta := make(map[string]interface{}, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if doc.Name != "" {
		meta["name"] = doc.Name
	}
	if doc.Source != "" {
		meta["source"] = doc.Source
	}
	if doc.MimeType != "" {
		meta["mime_type"] = doc.MimeType
	}
	return meta
}
