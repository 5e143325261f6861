package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/phuslu/log"
	"github.com/schollz/progressbar/v3"

	"drivechat/internal/logging"
	"drivechat/internal/models"
	"drivechat/pkg/config"
	"drivechat/pkg/llm"
	"drivechat/pkg/pipeline"
	"drivechat/pkg/repo"
	"drivechat/pkg/splitter"
	"drivechat/pkg/store"
)

type options struct {
	configPath     string
	reposFile      string
	localDir       string
	forceClone     bool
	noUpdate       bool
	clearStore     bool
	maxDocsPerRepo int
	maxFileSize    float64
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		color.Red("Error: %v", err)
		if hint := remediation(err); hint != "" {
			color.Yellow(hint)
		}
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&opts.reposFile, "repos-file", "", "File with one owner/repo per line")
	flag.StringVar(&opts.localDir, "local-dir", "", "Directory holding local clones (overrides GITHUB_LOCAL_REPOS_DIR)")
	flag.BoolVar(&opts.forceClone, "force-clone", false, "Remove local copies and clone fresh")
	flag.BoolVar(&opts.noUpdate, "no-update", false, "Skip pulling existing local clones")
	flag.BoolVar(&opts.clearStore, "clear-store", false, "Drop and recreate the collection before indexing")
	flag.IntVar(&opts.maxDocsPerRepo, "max-docs-per-repo", 0, "Maximum documents loaded per repository (0 = no limit)")
	flag.Float64Var(&opts.maxFileSize, "max-file-size", 0, "Maximum file size in MB (overrides GITHUB_MAX_FILE_SIZE_MB)")
	flag.Parse()

	return opts
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(opts options) error {
	if opts.reposFile == "" {
		flag.Usage()
		return fmt.Errorf("-repos-file is required")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level)

	if opts.localDir != "" {
		cfg.GitHub.LocalReposDir = opts.localDir
	}
	if opts.maxFileSize > 0 {
		cfg.GitHub.MaxFileSizeMB = opts.maxFileSize
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return fmt.Errorf("invalid configuration")
	}

	line := strings.Repeat("=", 60)
	color.Cyan("%s", line)
	color.Cyan("  GitHub Batch Indexer")
	color.Cyan("%s", line)
	fmt.Printf("  repos: %s | clones: %s | store: %s\n\n",
		opts.reposFile, cfg.GitHub.LocalReposDir, cfg.Store.Backend)

	loader, err := repo.NewWithConfig(repo.LoaderConfig{
		Token:         cfg.GitHub.Token,
		LocalReposDir: cfg.GitHub.LocalReposDir,
		MaxFileSizeMB: cfg.GitHub.MaxFileSizeMB,
		Extensions:    cfg.GitHub.FileExtensions,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	docs, statuses, err := loader.ProcessFromFile(ctx, opts.reposFile, repo.ProcessOptions{
		ForceClone:     opts.forceClone,
		UpdateExisting: !opts.noUpdate,
		MaxDocuments:   opts.maxDocsPerRepo,
	})
	if err != nil {
		return err
	}

	for _, status := range statuses {
		printStatus(status)
	}
	color.Green("\n✓ Loaded %d documents", len(docs))
	printDistribution(docs)

	if len(docs) == 0 {
		return fmt.Errorf("no documents loaded, nothing to index")
	}

	vectorStore, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:     cfg.Ollama.EmbeddingModel,
		BaseURL:   cfg.Ollama.BaseURL,
		BatchSize: cfg.Indexing.BatchSize,
		Dimension: cfg.Store.EmbeddingDim,
	})
	if err != nil {
		return err
	}

	split, err := splitter.NewHierarchical(splitter.HierarchicalConfig{
		ParentSize:     cfg.Splitter.ParentSize,
		ChildSize:      cfg.Splitter.ChildSize,
		GrandchildSize: cfg.Splitter.GrandchildSize,
		ChunkOverlap:   cfg.Splitter.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	indexer := pipeline.NewIndexer(vectorStore, embedder, split, pipeline.IndexerConfig{
		BatchSize: cfg.Indexing.BatchSize,
		OnProgress: func(done, total int) {
			if bar == nil {
				bar = getProgressBar(total, " Indexing chunks...")
			}
			bar.Set(done)
			if done >= total {
				bar.Finish()
				fmt.Println()
			}
		},
	})

	if opts.clearStore {
		color.Yellow("Clearing the collection...")
		if err := vectorStore.Drop(ctx); err != nil {
			return fmt.Errorf("failed to clear the collection: %w", err)
		}
	}
	if err := indexer.Setup(ctx, cfg.Store.EmbeddingDim); err != nil {
		return fmt.Errorf("failed to set up the collection: %w", err)
	}

	stats, err := indexer.Run(ctx, docs)
	if err != nil {
		return err
	}

	color.Green("✓ Indexed %d chunks from %d documents", stats.ChunksWritten, stats.DocumentsProcessed)
	if stats.ChunksDeduplicated > 0 {
		color.Blue("  %d duplicate chunks skipped", stats.ChunksDeduplicated)
	}

	name := cfg.Qdrant.Collection
	url := cfg.Qdrant.URL
	if cfg.Store.Backend == config.BackendPgvector {
		name = cfg.Store.TableName
		url = ""
	}
	info, err := indexer.Info(ctx, name, url)
	if err != nil {
		log.Warn().Err(err).Msg("could not read collection info")
		return nil
	}
	color.Cyan("\nCollection %q now holds %d points", info.Name, info.Documents)
	if info.URL != "" {
		color.Cyan("URL: %s", info.URL)
	}
	return nil
}

func printStatus(status string) {
	switch {
	case strings.Contains(status, "Failed") || strings.Contains(status, "Error"):
		color.Red("%s", status)
	case strings.Contains(status, "Cloned") || strings.Contains(status, "Found local"):
		color.Green("%s", status)
	default:
		color.Blue("%s", status)
	}
}

func printDistribution(docs []models.Document) {
	byCategory := map[string]int{}
	for _, doc := range docs {
		category, _ := doc.Metadata["category"].(string)
		if category == "" {
			category = "(uncategorized)"
		}
		byCategory[category]++
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		color.Blue("  %-30s %d documents", category, byCategory[category])
	}
}

func remediation(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "repository list file not found"):
		return "Create a file with one owner/repo per line and pass it with -repos-file."
	case strings.Contains(msg, "Ollama"):
		return "Start Ollama with: ollama serve"
	case strings.Contains(msg, "failed to clone"):
		return "Check that git is installed and the repository names are correct."
	}
	return ""
}
