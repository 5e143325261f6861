package repo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/phuslu/log"
	"golang.org/x/oauth2"

	"drivechat/internal/models"
)

type LoaderConfig struct {
	Token         string
	LocalReposDir string
	MaxFileSizeMB float64
	Extensions    []string
	Client        *github.Client // overrides Token auth, for tests
}

// Loader manages local clones of GitHub repositories and loads their
// files as documents.
type Loader struct {
	config LoaderConfig
	client *github.Client
	dir    *DirLoader
}

type ProcessOptions struct {
	ForceClone     bool
	UpdateExisting bool
	MaxDocuments   int
}

func NewWithConfig(config LoaderConfig) (*Loader, error) {
	if config.LocalReposDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		config.LocalReposDir = filepath.Join(home, "Coding")
	}

	client := config.Client
	if client == nil {
		if config.Token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
			client = github.NewClient(oauth2.NewClient(context.Background(), ts))
		} else {
			client = github.NewClient(nil)
		}
	}

	return &Loader{
		config: config,
		client: client,
		dir: NewDirLoader(DirLoaderConfig{
			Extensions:    config.Extensions,
			MaxFileSizeMB: config.MaxFileSizeMB,
		}),
	}, nil
}

// ParseRepoName splits an "owner/repo" identifier.
func ParseRepoName(identifier string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(identifier), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository identifier must be in format 'owner/repo', got: %s", identifier)
	}
	return parts[0], parts[1], nil
}

// LocalPath returns where a repository lives under the local repos dir.
func (l *Loader) LocalPath(identifier string) (string, error) {
	_, name, err := ParseRepoName(identifier)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.config.LocalReposDir, name), nil
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// cloneURL resolves the clone URL through the GitHub API, falling back
// to the well-known https URL when the API is unreachable.
func (l *Loader) cloneURL(ctx context.Context, owner, name string) string {
	repository, _, err := l.client.Repositories.Get(ctx, owner, name)
	if err == nil && repository.GetCloneURL() != "" {
		return repository.GetCloneURL()
	}
	if err != nil {
		log.Debug().Err(err).Str("repository", owner+"/"+name).Msg("clone URL lookup failed, using default")
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, name)
}

// CloneRepo clones a repository into targetDir with git.
func (l *Loader) CloneRepo(ctx context.Context, identifier, targetDir string) error {
	owner, name, err := ParseRepoName(identifier)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return err
	}

	url := l.cloneURL(ctx, owner, name)
	log.Info().Str("repository", identifier).Str("path", targetDir).Msg("cloning repository")

	cmd := exec.CommandContext(ctx, "git", "clone", url, targetDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to clone %s: %s", identifier, strings.TrimSpace(string(out)))
	}
	return nil
}

// UpdateRepo fast-forwards an existing clone.
func UpdateRepo(ctx context.Context, repoPath string) error {
	log.Info().Str("path", repoPath).Msg("updating repository")

	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "pull", "--ff-only")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("could not fast-forward %s: %s", repoPath, strings.TrimSpace(string(out)))
	}
	return nil
}

// LoadRepository loads documents from a local clone. The repository
// name becomes the category; the path-derived category moves into the
// subcategory so folder structure is not lost.
func (l *Loader) LoadRepository(identifier, repoPath string, maxDocs int) ([]models.Document, error) {
	if _, err := os.Stat(repoPath); err != nil {
		return nil, fmt.Errorf("repository path does not exist: %s", repoPath)
	}
	_, name, err := ParseRepoName(identifier)
	if err != nil {
		return nil, err
	}

	log.Info().Str("repository", identifier).Str("path", repoPath).Msg("loading documents from repository")

	documents, err := l.dir.Load(repoPath, map[string]interface{}{
		"repository": identifier,
		"source":     "github",
		"local_path": repoPath,
	})
	if err != nil {
		return nil, err
	}

	for i := range documents {
		doc := &documents[i]
		if category, _ := doc.Metadata["category"].(string); category != "root" {
			if sub, _ := doc.Metadata["subcategory"].(string); sub != "" {
				doc.Metadata["subcategory"] = category + "/" + sub
			} else {
				doc.Metadata["subcategory"] = category
			}
		}
		doc.Metadata["category"] = name
		doc.Source = "github"
		doc.ID = identifier + ":" + doc.ID
	}

	if maxDocs > 0 && len(documents) > maxDocs {
		documents = documents[:maxDocs]
	}

	log.Info().Int("documents", len(documents)).Str("repository", identifier).Msg("loaded repository documents")
	return documents, nil
}

// ProcessRepository resolves a repository to a local clone (cloning or
// updating as needed) and loads its documents.
func (l *Loader) ProcessRepository(ctx context.Context, identifier string, opts ProcessOptions) ([]models.Document, string, error) {
	repoPath, err := l.LocalPath(identifier)
	if err != nil {
		return nil, "", err
	}

	var status string
	if isGitRepo(repoPath) && !opts.ForceClone {
		log.Info().Str("repository", identifier).Str("path", repoPath).Msg("found local repository")
		if opts.UpdateExisting {
			if err := UpdateRepo(ctx, repoPath); err != nil {
				log.Warn().Err(err).Str("path", repoPath).Msg("update failed, using current checkout")
			}
		}
		status = fmt.Sprintf("Found local: %s at %s", identifier, repoPath)
	} else {
		if opts.ForceClone {
			log.Info().Str("path", repoPath).Msg("force clone requested, removing existing checkout")
			if err := os.RemoveAll(repoPath); err != nil {
				return nil, "", err
			}
		}
		if err := l.CloneRepo(ctx, identifier, repoPath); err != nil {
			return nil, fmt.Sprintf("Failed to clone: %s", identifier), err
		}
		status = fmt.Sprintf("Cloned: %s to %s", identifier, repoPath)
	}

	documents, err := l.LoadRepository(identifier, repoPath, opts.MaxDocuments)
	if err != nil {
		return nil, status, err
	}
	return documents, status, nil
}

// ProcessFromFile processes every repository listed in reposFile, one
// "owner/repo" per line. Blank lines and # comments are skipped, and a
// failing repository does not stop the rest.
func (l *Loader) ProcessFromFile(ctx context.Context, reposFile string, opts ProcessOptions) ([]models.Document, []string, error) {
	data, err := os.ReadFile(reposFile)
	if err != nil {
		return nil, nil, fmt.Errorf("repository list file not found: %s", reposFile)
	}

	var repoList []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repoList = append(repoList, line)
	}

	log.Info().Int("repositories", len(repoList)).Str("file", reposFile).Msg("processing repositories")

	var all []models.Document
	var statuses []string
	for i, identifier := range repoList {
		log.Info().Str("repository", identifier).Msgf("[%d/%d] processing", i+1, len(repoList))

		documents, status, err := l.ProcessRepository(ctx, identifier, opts)
		if err != nil {
			log.Error().Err(err).Str("repository", identifier).Msg("processing failed")
			statuses = append(statuses, fmt.Sprintf("[%d/%d] Error processing %s: %v", i+1, len(repoList), identifier, err))
			continue
		}

		all = append(all, documents...)
		statuses = append(statuses, fmt.Sprintf("[%d/%d] %s - %d documents", i+1, len(repoList), status, len(documents)))
	}

	log.Info().Int("repositories", len(repoList)).Int("documents", len(all)).Msg("finished processing repositories")
	return all, statuses, nil
}
