package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"drivechat/internal/logging"
	"drivechat/internal/models"
	"drivechat/internal/types"
	"drivechat/pkg/chat"
	"drivechat/pkg/config"
	"drivechat/pkg/drive"
	"drivechat/pkg/llm"
	"drivechat/pkg/pipeline"
	"drivechat/pkg/splitter"
	"drivechat/pkg/store"
)

type options struct {
	configPath   string
	folderID     string
	maxDocs      int
	chatOnly     bool
	setupOnly    bool
	info         bool
	clearStore   bool
	hierarchical bool
	stream       bool
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
	flag.StringVar(&opts.folderID, "folder-id", "", "Google Drive folder ID (overrides GOOGLE_DRIVE_FOLDER_ID)")
	flag.IntVar(&opts.maxDocs, "max-docs", 0, "Maximum number of documents to load (0 = no limit)")
	flag.BoolVar(&opts.chatOnly, "chat-only", false, "Skip loading and chat against the existing collection")
	flag.BoolVar(&opts.setupOnly, "setup-only", false, "Load and index documents, then exit without chatting")
	flag.BoolVar(&opts.info, "info", false, "Print collection info and exit")
	flag.BoolVar(&opts.clearStore, "clear-store", false, "Drop and recreate the collection before indexing")
	flag.BoolVar(&opts.hierarchical, "hierarchical", false, "Multi-level chunking with folder hierarchy metadata")
	flag.BoolVar(&opts.stream, "stream", false, "Stream answers token by token")
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

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level)

	if opts.folderID != "" {
		cfg.Google.FolderID = opts.folderID
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return fmt.Errorf("invalid configuration")
	}

	ctx := context.Background()

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

	split, err := newSplitter(cfg, opts.hierarchical)
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

	if opts.info {
		return printInfo(ctx, indexer, cfg)
	}

	banner(cfg)

	if opts.clearStore {
		color.Yellow("Clearing the collection...")
		if err := vectorStore.Drop(ctx); err != nil {
			return fmt.Errorf("failed to clear the collection: %w", err)
		}
	}

	if !opts.chatOnly {
		if err := indexer.Setup(ctx, cfg.Store.EmbeddingDim); err != nil {
			return fmt.Errorf("failed to set up the collection: %w", err)
		}
		if err := loadAndIndex(ctx, cfg, opts, indexer); err != nil {
			return err
		}
	}

	if opts.setupOnly {
		color.Green("✓ Setup complete")
		return nil
	}

	generator, err := llm.NewGenerator(llm.GeneratorConfig{
		Model:       cfg.Ollama.Model,
		BaseURL:     cfg.Ollama.BaseURL,
		MaxTokens:   cfg.Ollama.MaxTokens,
		Temperature: cfg.Ollama.Temperature,
	})
	if err != nil {
		return err
	}

	querier := pipeline.NewQuerier(vectorStore, embedder, generator, cfg.Indexing.TopK)
	session := chat.NewSession(querier, chat.SessionConfig{
		Streaming: cfg.UI.Streaming || opts.stream,
		TopK:      cfg.Indexing.TopK,
	})
	return session.Run(ctx)
}

func loadAndIndex(ctx context.Context, cfg *config.Config, opts options, indexer *pipeline.Indexer) error {
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}
	if cfg.Google.FolderID == "" {
		return fmt.Errorf("no folder ID configured: set GOOGLE_DRIVE_FOLDER_ID or pass --folder-id")
	}

	spinner := getSpinner(" Loading documents from Google Drive...")
	loader, err := drive.NewWithConfig(ctx, drive.LoaderConfig{
		CredentialsPath: cfg.Google.CredentialsPath,
		OnProgress: func(name string) {
			spinner.Describe(color.CyanString(" Loading %s", name))
			spinner.Add(1)
		},
	})
	if err != nil {
		return err
	}

	var docs []models.Document
	if opts.hierarchical {
		docs, err = loader.LoadWithHierarchy(ctx, cfg.Google.FolderID, opts.maxDocs)
	} else {
		docs, err = loader.LoadDocuments(ctx, cfg.Google.FolderID, opts.maxDocs)
	}
	spinner.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	color.Green("✓ Loaded %d documents", len(docs))
	for i, doc := range docs {
		if i == 5 {
			color.Blue("  ... and %d more", len(docs)-5)
			break
		}
		color.Blue("  - %s", doc.Name)
	}

	stats, err := indexer.Run(ctx, docs)
	if err != nil {
		return err
	}

	color.Green("✓ Indexed %d chunks from %d documents", stats.ChunksWritten, stats.DocumentsProcessed)
	if stats.DocumentsSkipped > 0 {
		color.Blue("  %d unsupported documents skipped", stats.DocumentsSkipped)
	}
	if stats.ChunksDeduplicated > 0 {
		color.Blue("  %d duplicate chunks skipped", stats.ChunksDeduplicated)
	}
	return nil
}

func newSplitter(cfg *config.Config, hierarchical bool) (types.Splitter, error) {
	if hierarchical {
		s, err := splitter.NewHierarchical(splitter.HierarchicalConfig{
			ParentSize:     cfg.Splitter.ParentSize,
			ChildSize:      cfg.Splitter.ChildSize,
			GrandchildSize: cfg.Splitter.GrandchildSize,
			ChunkOverlap:   cfg.Splitter.ChunkOverlap,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := splitter.NewWordSplitter(splitter.WordSplitterConfig{
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func printInfo(ctx context.Context, indexer *pipeline.Indexer, cfg *config.Config) error {
	name := cfg.Qdrant.Collection
	url := cfg.Qdrant.URL
	if cfg.Store.Backend == config.BackendPgvector {
		name = cfg.Store.TableName
		url = "" // the database DSN may carry a password, keep it out of the output
	}

	info, err := indexer.Info(ctx, name, url)
	if err != nil {
		if errors.Is(err, store.ErrCollectionMissing) {
			return fmt.Errorf("collection %q does not exist yet", name)
		}
		return err
	}

	color.Cyan("Collection: %s", info.Name)
	color.Cyan("Documents:  %d", info.Documents)
	if info.URL != "" {
		color.Cyan("URL:        %s", info.URL)
	}
	color.Cyan("Backend:    %s", cfg.Store.Backend)
	color.Cyan("Embedding:  %s (%d dimensions)", cfg.Ollama.EmbeddingModel, cfg.Store.EmbeddingDim)
	color.Cyan("Chat model: %s", cfg.Ollama.Model)
	return nil
}

func banner(cfg *config.Config) {
	line := strings.Repeat("=", 60)
	color.Cyan("%s", line)
	color.Cyan("  Drive RAG Chat")
	color.Cyan("%s", line)
	fmt.Printf("  store: %s | chat: %s | embeddings: %s\n\n",
		cfg.Store.Backend, cfg.Ollama.Model, cfg.Ollama.EmbeddingModel)
}

func remediation(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, drive.ErrNotAuthenticated):
		return "Check GOOGLE_APPLICATION_CREDENTIALS and share the folder with the service account."
	case errors.Is(err, store.ErrCollectionMissing):
		return "Run with --setup-only to create and fill the collection first."
	case strings.Contains(msg, "credentials file not found"):
		return "Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file."
	case strings.Contains(msg, "Ollama"):
		return "Start Ollama with: ollama serve"
	case strings.Contains(msg, "folder") && strings.Contains(msg, "not found"):
		return "Check the folder ID and share the folder with the service account email."
	}
	return ""
}
