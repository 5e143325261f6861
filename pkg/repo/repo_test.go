package repo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoName(t *testing.T) {
	tests := []struct {
		identifier string
		owner      string
		name       string
		wantErr    bool
	}{
		{"acme/widgets", "acme", "widgets", false},
		{"  acme/widgets  ", "acme", "widgets", false},
		{"acme", "", "", true},
		{"acme/widgets/extra", "", "", true},
		{"/widgets", "", "", true},
		{"acme/", "", "", true},
	}

	for _, tt := range tests {
		owner, name, err := ParseRepoName(tt.identifier)
		if tt.wantErr {
			assert.Error(t, err, tt.identifier)
			continue
		}
		require.NoError(t, err, tt.identifier)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.name, name)
	}
}

func TestLocalPath(t *testing.T) {
	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: "/tmp/repos"})
	require.NoError(t, err)

	path, err := loader.LocalPath("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/repos", "widgets"), path)

	_, err = loader.LocalPath("not-a-repo")
	assert.Error(t, err)
}

func TestIsGitRepo(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, isGitRepo(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	assert.True(t, isGitRepo(dir))

	// A .git file (worktree pointer) does not count as a full clone.
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, ".git"), []byte("gitdir: elsewhere"), 0o644))
	assert.False(t, isGitRepo(other))
}

func TestCloneURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/acme/widgets" {
			fmt.Fprint(w, `{"clone_url": "https://git.example.com/acme/widgets.git"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: t.TempDir(), Client: client})
	require.NoError(t, err)

	assert.Equal(t, "https://git.example.com/acme/widgets.git",
		loader.cloneURL(context.Background(), "acme", "widgets"))

	// API miss falls back to the canonical URL.
	assert.Equal(t, "https://github.com/acme/gadgets.git",
		loader.cloneURL(context.Background(), "acme", "gadgets"))
}

func TestLoadRepository(t *testing.T) {
	reposDir := t.TempDir()
	repoPath := filepath.Join(reposDir, "widgets")
	writeFile(t, filepath.Join(reposDir, "widgets"), "README.md", "widgets readme")
	writeFile(t, repoPath, "src/main.go", "package main")
	writeFile(t, repoPath, "src/util/helpers.go", "package util")
	writeFile(t, repoPath, "logo.png", "binary")

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: reposDir, Extensions: []string{".md", ".go"}})
	require.NoError(t, err)

	docs, err := loader.LoadRepository("acme/widgets", repoPath, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	byPath := docsByPath(docs)

	readme := byPath["README.md"]
	assert.Equal(t, "acme/widgets:README.md", readme.ID)
	assert.Equal(t, "github", readme.Source)
	assert.Equal(t, "widgets", readme.Metadata["category"])
	assert.Nil(t, readme.Metadata["subcategory"])
	assert.Equal(t, "acme/widgets", readme.Metadata["repository"])
	assert.Equal(t, "github", readme.Metadata["source"])
	assert.Equal(t, repoPath, readme.Metadata["local_path"])

	// Path-derived categories move into the subcategory.
	assert.Equal(t, "widgets", byPath["src/main.go"].Metadata["category"])
	assert.Equal(t, "src", byPath["src/main.go"].Metadata["subcategory"])
	assert.Equal(t, "src/util", byPath["src/util/helpers.go"].Metadata["subcategory"])
}

func TestLoadRepositoryMaxDocs(t *testing.T) {
	reposDir := t.TempDir()
	repoPath := filepath.Join(reposDir, "widgets")
	writeFile(t, repoPath, "a.md", "first")
	writeFile(t, repoPath, "b.md", "second")

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: reposDir})
	require.NoError(t, err)

	docs, err := loader.LoadRepository("acme/widgets", repoPath, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestLoadRepositoryMissingPath(t *testing.T) {
	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: t.TempDir()})
	require.NoError(t, err)

	_, err = loader.LoadRepository("acme/widgets", filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestProcessRepositoryLocal(t *testing.T) {
	reposDir := t.TempDir()
	repoPath := filepath.Join(reposDir, "widgets")
	writeFile(t, repoPath, "README.md", "hello")
	require.NoError(t, os.MkdirAll(filepath.Join(repoPath, ".git"), 0o755))

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: reposDir})
	require.NoError(t, err)

	docs, status, err := loader.ProcessRepository(context.Background(), "acme/widgets", ProcessOptions{})
	require.NoError(t, err)
	assert.Contains(t, status, "Found local: acme/widgets")
	assert.Len(t, docs, 1)
}

func TestProcessFromFile(t *testing.T) {
	reposDir := t.TempDir()
	repoPath := filepath.Join(reposDir, "widgets")
	writeFile(t, repoPath, "notes.md", "notes")
	require.NoError(t, os.MkdirAll(filepath.Join(repoPath, ".git"), 0o755))

	reposFile := filepath.Join(t.TempDir(), "repos.txt")
	require.NoError(t, os.WriteFile(reposFile, []byte("# team repos\n\nacme/widgets\n"), 0o644))

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: reposDir})
	require.NoError(t, err)

	docs, statuses, err := loader.ProcessFromFile(context.Background(), reposFile, ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0], "[1/1]")
	assert.Contains(t, statuses[0], "Found local")
	assert.Contains(t, statuses[0], "1 documents")
	assert.Len(t, docs, 1)
}

func TestProcessFromFileBadRepoContinues(t *testing.T) {
	reposFile := filepath.Join(t.TempDir(), "repos.txt")
	require.NoError(t, os.WriteFile(reposFile, []byte("not-a-repo\n"), 0o644))

	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: t.TempDir()})
	require.NoError(t, err)

	docs, statuses, err := loader.ProcessFromFile(context.Background(), reposFile, ProcessOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0], "Error processing not-a-repo")
}

func TestProcessFromFileMissing(t *testing.T) {
	loader, err := NewWithConfig(LoaderConfig{LocalReposDir: t.TempDir()})
	require.NoError(t, err)

	_, _, err = loader.ProcessFromFile(context.Background(), filepath.Join(t.TempDir(), "repos.txt"), ProcessOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
