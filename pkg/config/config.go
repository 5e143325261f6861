package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends accepted by VECTOR_STORE_BACKEND.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

type Config struct {
	Google struct {
		CredentialsPath string `yaml:"credentials_path"`
		FolderID        string `yaml:"folder_id"`
	} `yaml:"google"`

	Qdrant struct {
		URL        string `yaml:"url"`
		Collection string `yaml:"collection"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"qdrant"`

	Ollama struct {
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"ollama"`

	Store struct {
		Backend      string `yaml:"backend"`
		DatabaseURL  string `yaml:"database_url"`
		TableName    string `yaml:"table_name"`
		EmbeddingDim int    `yaml:"embedding_dim"`
	} `yaml:"store"`

	Splitter struct {
		ChunkSize      int `yaml:"chunk_size"`
		ChunkOverlap   int `yaml:"chunk_overlap"`
		ParentSize     int `yaml:"parent_size"`
		ChildSize      int `yaml:"child_size"`
		GrandchildSize int `yaml:"grandchild_size"`
	} `yaml:"splitter"`

	Indexing struct {
		BatchSize int `yaml:"batch_size"`
		TopK      int `yaml:"top_k"`
	} `yaml:"indexing"`

	GitHub struct {
		Token          string   `yaml:"token"`
		LocalReposDir  string   `yaml:"local_repos_dir"`
		MaxFileSizeMB  float64  `yaml:"max_file_size_mb"`
		FileExtensions []string `yaml:"file_extensions"`
	} `yaml:"github"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	UI struct {
		Streaming bool `yaml:"streaming"`
	} `yaml:"ui"`
}

// Load builds the configuration from, in increasing precedence, built-in
// defaults, an optional YAML file, and environment variables. A .env file
// in the working directory is read into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/drivechat/config.yaml"),
			"/etc/drivechat/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Qdrant.URL == "" {
		config.Qdrant.URL = "http://localhost:6333"
	}
	if config.Qdrant.Collection == "" {
		config.Qdrant.Collection = "documents"
	}

	if config.Ollama.BaseURL == "" {
		config.Ollama.BaseURL = "http://localhost:11434"
	}
	if config.Ollama.Model == "" {
		config.Ollama.Model = "llama3.2:latest"
	}
	if config.Ollama.EmbeddingModel == "" {
		config.Ollama.EmbeddingModel = "mxbai-embed-large"
	}
	if config.Ollama.MaxTokens == 0 {
		config.Ollama.MaxTokens = 2000
	}
	if config.Ollama.Temperature == 0 {
		config.Ollama.Temperature = 0.7
	}

	if config.Store.Backend == "" {
		config.Store.Backend = BackendQdrant
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "documents"
	}
	if config.Store.EmbeddingDim == 0 {
		config.Store.EmbeddingDim = 1024
	}

	if config.Splitter.ChunkSize == 0 {
		config.Splitter.ChunkSize = 500
	}
	if config.Splitter.ChunkOverlap == 0 {
		config.Splitter.ChunkOverlap = 50
	}
	if config.Splitter.ParentSize == 0 {
		config.Splitter.ParentSize = 2000
	}
	if config.Splitter.ChildSize == 0 {
		config.Splitter.ChildSize = 500
	}
	if config.Splitter.GrandchildSize == 0 {
		config.Splitter.GrandchildSize = 150
	}

	if config.Indexing.BatchSize == 0 {
		config.Indexing.BatchSize = 10
	}
	if config.Indexing.TopK == 0 {
		config.Indexing.TopK = 5
	}

	if config.GitHub.LocalReposDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			config.GitHub.LocalReposDir = filepath.Join(home, "Coding")
		}
	}
	if config.GitHub.MaxFileSizeMB == 0 {
		config.GitHub.MaxFileSizeMB = 10
	}
	if len(config.GitHub.FileExtensions) == 0 {
		config.GitHub.FileExtensions = defaultFileExtensions()
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		config.Google.CredentialsPath = v
	}
	if v := os.Getenv("GOOGLE_DRIVE_FOLDER_ID"); v != "" {
		config.Google.FolderID = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		config.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION_NAME"); v != "" {
		config.Qdrant.Collection = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		config.Qdrant.APIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		config.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL_NAME"); v != "" {
		config.Ollama.Model = v
	}
	if v := os.Getenv("OLLAMA_EMBEDDING_MODEL"); v != "" {
		config.Ollama.EmbeddingModel = v
	}
	if v := os.Getenv("VECTOR_STORE_BACKEND"); v != "" {
		config.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Store.DatabaseURL = v
	}
	if v := os.Getenv("PGVECTOR_TABLE_NAME"); v != "" {
		config.Store.TableName = v
	}
	if v, ok := envInt("EMBEDDING_DIM"); ok {
		config.Store.EmbeddingDim = v
	}
	if v, ok := envInt("CHUNK_SIZE"); ok {
		config.Splitter.ChunkSize = v
	}
	if v, ok := envInt("CHUNK_OVERLAP"); ok {
		config.Splitter.ChunkOverlap = v
	}
	if v, ok := envInt("MAX_DOCUMENTS_PER_BATCH"); ok {
		config.Indexing.BatchSize = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		config.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_LOCAL_REPOS_DIR"); v != "" {
		config.GitHub.LocalReposDir = v
	}
	if v, ok := envFloat("GITHUB_MAX_FILE_SIZE_MB"); ok {
		config.GitHub.MaxFileSizeMB = v
	}
	if v := os.Getenv("GITHUB_FILE_EXTENSIONS"); v != "" {
		config.GitHub.FileExtensions = splitExtensions(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func splitExtensions(v string) []string {
	var exts []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		exts = append(exts, strings.ToLower(part))
	}
	return exts
}

func defaultFileExtensions() []string {
	return []string{
		".py", ".js", ".ts", ".jsx", ".tsx",
		".md", ".txt", ".rst",
		".yaml", ".yml", ".json", ".toml",
		".sh", ".bash", ".zsh",
		".go", ".rs", ".java", ".cpp", ".c", ".h",
		".html", ".css", ".scss",
		".sql", ".graphql",
	}
}
