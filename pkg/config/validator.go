package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Ollama.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "ollama.base_url",
			Message: "Ollama base URL is required",
		})
	} else if !validURL(c.Ollama.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "ollama.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.Ollama.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "ollama.model",
			Message: "chat model name is required",
		})
	}

	if c.Ollama.EmbeddingModel == "" {
		errors = append(errors, ValidationError{
			Field:   "ollama.embedding_model",
			Message: "embedding model name is required",
		})
	}

	if c.Ollama.MaxTokens < 1 || c.Ollama.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "ollama.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "ollama.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	switch c.Store.Backend {
	case BackendQdrant:
		if c.Qdrant.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "qdrant.url",
				Message: "Qdrant URL is required",
			})
		} else if !validURL(c.Qdrant.URL) {
			errors = append(errors, ValidationError{
				Field:   "qdrant.url",
				Message: "invalid Qdrant URL",
			})
		}
		if c.Qdrant.Collection == "" {
			errors = append(errors, ValidationError{
				Field:   "qdrant.collection",
				Message: "collection name is required",
			})
		}
	case BackendPgvector:
		if c.Store.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "pgvector backend requires DATABASE_URL",
			})
		}
		if c.Store.TableName == "" {
			errors = append(errors, ValidationError{
				Field:   "store.table_name",
				Message: "table name is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q, expected %s or %s", c.Store.Backend, BackendQdrant, BackendPgvector),
		})
	}

	if c.Store.EmbeddingDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.embedding_dim",
			Message: "embedding_dim must be positive",
		})
	}

	if c.Splitter.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if !(c.Splitter.ParentSize > c.Splitter.ChildSize && c.Splitter.ChildSize > c.Splitter.GrandchildSize) {
		errors = append(errors, ValidationError{
			Field:   "splitter.parent_size",
			Message: "hierarchical sizes must satisfy parent > child > grandchild",
		})
	}

	if c.Indexing.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexing.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Indexing.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexing.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.GitHub.MaxFileSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "github.max_file_size_mb",
			Message: "max_file_size_mb must be positive",
		})
	}

	for _, ext := range c.GitHub.FileExtensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "github.file_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	return errors
}

// ValidateCredentials checks that the Google service account file is
// configured and present on disk. Kept separate from Validate because
// chat-only runs never touch Drive.
func (c *Config) ValidateCredentials() error {
	if c.Google.CredentialsPath == "" {
		return fmt.Errorf("Google credentials file not found: GOOGLE_APPLICATION_CREDENTIALS not set")
	}
	if _, err := os.Stat(c.Google.CredentialsPath); err != nil {
		return fmt.Errorf("Google credentials file not found: %s", c.Google.CredentialsPath)
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
