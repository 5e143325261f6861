package repo

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"

	"drivechat/internal/models"
	"drivechat/pkg/extract"
)

// DefaultExtensions is the file type allowlist for repository loads.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx",
	".md", ".txt", ".rst",
	".yaml", ".yml", ".json", ".toml",
	".sh", ".bash", ".zsh",
	".go", ".rs", ".java", ".cpp", ".c", ".h",
	".html", ".css", ".scss",
	".sql", ".graphql",
	".dockerfile", ".dockerignore", ".gitignore", ".env.example",
}

type DirLoaderConfig struct {
	Extensions    []string
	MaxFileSizeMB float64
}

// DirLoader loads documents from a local directory tree, attaching
// hierarchical metadata derived from each file's path.
type DirLoader struct {
	config DirLoaderConfig
}

func NewDirLoader(config DirLoaderConfig) *DirLoader {
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	if config.MaxFileSizeMB == 0 {
		config.MaxFileSizeMB = 10.0
	}
	return &DirLoader{config: config}
}

// Load walks root and returns a document per supported file. Dot
// directories are skipped, as are files over the size limit and files
// with no extractable content. extra metadata is applied to every
// document after the hierarchical keys.
func (d *DirLoader) Load(root string, extra map[string]interface{}) ([]models.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	maxBytes := int64(d.config.MaxFileSizeMB * 1024 * 1024)

	var documents []models.Document
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !d.allowed(ext) {
			return nil
		}

		stat, err := entry.Info()
		if err != nil {
			return nil
		}
		if maxBytes > 0 && stat.Size() > maxBytes {
			log.Warn().Str("path", path).Int64("size", stat.Size()).Msg("skipping large file")
			return nil
		}

		content, err := readFileContent(path, ext)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to read file")
			return nil
		}
		if content == "" {
			log.Warn().Str("path", path).Msg("empty file skipped")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		metadata := hierarchicalMetadata(rel, stat)
		for k, v := range extra {
			metadata[k] = v
		}

		documents = append(documents, models.Document{
			ID:       rel,
			Name:     entry.Name(),
			Source:   "local",
			Content:  content,
			Metadata: metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int("documents", len(documents)).Str("root", root).Msg("loaded documents from directory")
	return documents, nil
}

func (d *DirLoader) allowed(ext string) bool {
	for _, allowed := range d.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func readFileContent(path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch ext {
	case ".html", ".htm":
		return extract.FromHTML(bytes.NewReader(data))
	case ".pdf":
		return extract.FromPDF(data)
	default:
		return strings.TrimSpace(extract.SanitizeUTF8(string(data))), nil
	}
}

func hierarchicalMetadata(rel string, stat fs.FileInfo) map[string]interface{} {
	parts := strings.Split(rel, "/")
	dirs := parts[:len(parts)-1]

	metadata := map[string]interface{}{
		"file_name":       parts[len(parts)-1],
		"file_path":       rel,
		"category":        "root",
		"subcategory":     nil,
		"hierarchy_path":  "root",
		"hierarchy_level": len(dirs),
		"file_type":       strings.ToLower(filepath.Ext(rel)),
		"file_size_bytes": stat.Size(),
		"modified_date":   stat.ModTime().Format(time.RFC3339),
		"source":          "local",
	}
	if len(dirs) > 0 {
		metadata["category"] = dirs[0]
		metadata["hierarchy_path"] = strings.Join(dirs, "/")
	}
	if len(dirs) > 1 {
		metadata["subcategory"] = dirs[1]
	}
	return metadata
}
