package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
	"github.com/fyrsmithlabs/designd/internal/embeddings"
	"github.com/fyrsmithlabs/designd/internal/ingest"
	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

var (
	indexConfig      string
	indexConcurrency int
	indexBatchSize   int
)

// indexCmd embeds a design manifest into the local index
var indexCmd = &cobra.Command{
	Use:   "index <manifest.toml>",
	Short: "Index a design manifest into the design index",
	Long: `Embed every design image listed in a TOML manifest and upsert it into
the design index configured for designd. This runs locally and does not
need a running server.

Manifest format:

  images_dir = "./design_images"

  [[design]]
  id = "3020230012345"
  application_number = "3020230012345"
  article_name = "의자"
  admst_stat = "등록"

Examples:
  designctl index designs.toml
  designctl index designs.toml --config designd.yaml --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexConfig, "config", "c", os.Getenv("DESIGND_CONFIG"), "path to the designd YAML config")
	indexCmd.Flags().IntVar(&indexConcurrency, "concurrency", 4, "parallel embedding requests")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 64, "records per upsert")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(indexConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	manifest, err := ingest.LoadManifest(args[0])
	if err != nil {
		return err
	}

	lcfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	lcfg.Output.Stdout = false
	lcfg.Output.Stderr = true
	logger, err := logging.NewLogger(lcfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	stats, err := indexManifest(ctx, cfg, manifest, zl, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), stats, func(w io.Writer) {
		fmt.Fprintf(w, "Indexed %d, skipped %d, failed %d in %s\n",
			stats.Indexed, stats.Skipped, stats.Failed, stats.Duration.Round(time.Millisecond))
	})
}

// indexManifest opens the configured index and embedder and runs ingestion.
// Image embeddings never need translation, so no translator is wired.
func indexManifest(ctx context.Context, cfg *config.Config, m *ingest.Manifest, logger *zap.Logger, progress io.Writer) (*ingest.Stats, error) {
	index, err := vectorstore.NewIndex(ctx, cfg.VectorStore, cfg.Embeddings.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open design index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("failed to close vector index", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewClient(cfg.Embeddings, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	var mu sync.Mutex
	stats, err := ingest.New(embedder, index, logger).Run(ctx, m, ingest.Options{
		Concurrency: indexConcurrency,
		BatchSize:   indexBatchSize,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(progress, "\r%d/%d", done, total)
		},
	})
	fmt.Fprintln(progress)
	return stats, err
}
