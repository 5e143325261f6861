package splitter

import (
	"fmt"
	"strings"

	"github.com/phuslu/log"

	"drivechat/internal/models"
)

// HierarchicalConfig controls multi-level splitting. Sizes are in words
// and must satisfy parent > child > grandchild. Levels selects which of
// the three levels to produce; empty means all.
type HierarchicalConfig struct {
	ParentSize     int
	ChildSize      int
	GrandchildSize int
	ChunkOverlap   int
	Levels         []string
}

// HierarchicalSplitter splits documents into a chunk tree for
// auto-merging retrieval: large parent chunks, medium children, small
// grandchildren. Each lower-level chunk records the upper-level chunk
// it overlaps most as ParentID.
type HierarchicalSplitter struct {
	config HierarchicalConfig
}

func NewHierarchical(config HierarchicalConfig) (*HierarchicalSplitter, error) {
	if config.ParentSize == 0 {
		config.ParentSize = 2000
	}
	if config.ChildSize == 0 {
		config.ChildSize = 500
	}
	if config.GrandchildSize == 0 {
		config.GrandchildSize = 150
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}
	if len(config.Levels) == 0 {
		config.Levels = []string{models.LevelParent, models.LevelChild, models.LevelGrandchild}
	}

	if !(config.ParentSize > config.ChildSize && config.ChildSize > config.GrandchildSize) {
		return nil, fmt.Errorf("chunk sizes must follow: parent > child > grandchild")
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", config.ChunkOverlap)
	}

	return &HierarchicalSplitter{config: config}, nil
}

func (s *HierarchicalSplitter) SplitDocuments(docs []models.Document) ([]models.Chunk, error) {
	var all []models.Chunk

	for _, doc := range docs {
		words := strings.Fields(doc.Content)
		if len(words) == 0 {
			log.Warn().Str("name", doc.Name).Msg("skipping empty document")
			continue
		}

		docID := docIDFor(doc)

		// Documents smaller than the smallest chunk size become a single
		// grandchild chunk.
		if len(words) <= s.config.GrandchildSize {
			content := strings.Join(words, " ")
			all = append(all, models.Chunk{
				ID:          chunkIDFor(docID, models.LevelGrandchild, 0),
				DocID:       docID,
				Level:       models.LevelGrandchild,
				Index:       0,
				Start:       0,
				End:         len(words),
				Content:     content,
				ContentHash: HashContent(content),
				TotalChunks: 1,
				Metadata:    chunkMetadata(doc),
			})
			continue
		}

		var parents, children []models.Chunk

		if s.hasLevel(models.LevelParent) {
			parents = createChunks(words, s.config.ParentSize, s.config.ChunkOverlap, models.LevelParent, docID, doc)
			all = append(all, parents...)
		}

		if s.hasLevel(models.LevelChild) {
			children = createChunks(words, s.config.ChildSize, s.config.ChunkOverlap, models.LevelChild, docID, doc)
			if len(parents) > 0 {
				assignParentIDs(children, parents)
			} else {
				assignVirtualParent(children, docID)
			}
			all = append(all, children...)
		}

		if s.hasLevel(models.LevelGrandchild) {
			grandchildren := createChunks(words, s.config.GrandchildSize, s.config.ChunkOverlap, models.LevelGrandchild, docID, doc)
			switch {
			case len(children) > 0:
				assignParentIDs(grandchildren, children)
			case len(parents) > 0:
				assignParentIDs(grandchildren, parents)
			default:
				assignVirtualParent(grandchildren, docID)
			}
			all = append(all, grandchildren...)
		}
	}

	log.Info().Int("chunks", len(all)).Int("documents", len(docs)).Msg("hierarchical split complete")
	return all, nil
}

func (s *HierarchicalSplitter) hasLevel(level string) bool {
	for _, l := range s.config.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// assignParentIDs links each lower-level chunk to the upper-level chunk
// whose word range overlaps it most.
func assignParentIDs(lower, upper []models.Chunk) {
	for i := range lower {
		bestOverlap := 0
		bestParent := ""

		for _, parent := range upper {
			overlapStart := max(lower[i].Start, parent.Start)
			overlapEnd := min(lower[i].End, parent.End)
			if overlap := overlapEnd - overlapStart; overlap > bestOverlap {
				bestOverlap = overlap
				bestParent = parent.ID
			}
		}

		if bestParent != "" {
			lower[i].ParentID = bestParent
		}
	}
}

func assignVirtualParent(chunks []models.Chunk, docID string) {
	for i := range chunks {
		chunks[i].ParentID = docID + "_virtual_parent"
	}
}
