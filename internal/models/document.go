package models

// Document is a single source document before splitting. ID is stable
// across runs for the same source: the Drive file ID, the repository
// relative path, or a content hash when the loader has nothing better.
type Document struct {
	ID       string
	Name     string
	Source   string
	MimeType string
	Content  string
	Metadata map[string]interface{}
}

// Chunk levels produced by the hierarchical splitter. Flat splitting
// leaves Level empty.
const (
	LevelParent     = "parent"
	LevelChild      = "child"
	LevelGrandchild = "grandchild"
)

// Chunk is one unit of indexed text. Start and End are word offsets
// into the cleaned document, so parent assignment and overlap checks
// work on the same coordinates the splitter used.
type Chunk struct {
	ID          string
	DocID       string
	Level       string
	Index       int
	Start       int
	End         int
	Content     string
	ContentHash string
	TotalChunks int
	ParentID    string
	Metadata    map[string]interface{}
	Vector      []float32
}

// SearchResult is a retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float32
}
