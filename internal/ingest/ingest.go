package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/designd/internal/assets"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/ingest"

// Embedder embeds drawing images.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Options tunes ingestion.
type Options struct {
	// Concurrency bounds parallel embedding requests (default: 4).
	Concurrency int
	// BatchSize is the number of records per upsert (default: 64).
	BatchSize int
	// Progress, if set, is called after each design is processed. Calls may
	// come from several goroutines.
	Progress func(done, total int)
}

// Stats summarises an ingestion run.
type Stats struct {
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Ingester embeds manifest images and upserts them.
type Ingester struct {
	embedder Embedder
	index    vectorstore.Index
	logger   *zap.Logger
}

// New creates an Ingester.
func New(embedder Embedder, index vectorstore.Index, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{embedder: embedder, index: index, logger: logger}
}

// Run indexes every design in m. Designs with missing or undecodable
// images are skipped, and designs whose embedding fails are counted as
// failed. Only upsert errors abort the run.
func (in *Ingester) Run(ctx context.Context, m *Manifest, opts Options) (*Stats, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "ingest.Run")
	defer span.End()

	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}

	start := time.Now()
	total := len(m.Designs)
	records := make([]*vectorstore.Record, total)
	stats := &Stats{}

	var (
		mu   sync.Mutex
		done int
	)
	tally := func(f func()) {
		mu.Lock()
		f()
		done++
		n := done
		mu.Unlock()
		if opts.Progress != nil {
			opts.Progress(n, total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, d := range m.Designs {
		g.Go(func() error {
			rec, skipped, err := in.prepare(gctx, m, d)
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				in.logger.Warn("failed to embed design", zap.String("design_id", d.ID), zap.Error(err))
				tally(func() { stats.Failed++ })
			case skipped:
				tally(func() { stats.Skipped++ })
			default:
				records[i] = rec
				tally(func() {})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, err
	}

	batch := make([]vectorstore.Record, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := in.index.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("failed to upsert %d records: %w", len(batch), err)
		}
		stats.Indexed += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		batch = append(batch, *rec)
		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, err
	}

	stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("ingest.indexed", stats.Indexed),
		attribute.Int("ingest.skipped", stats.Skipped),
		attribute.Int("ingest.failed", stats.Failed),
	)
	in.logger.Info("ingestion complete",
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// prepare reads and embeds one design. skipped is true when its image is
// missing or is not a decodable image.
func (in *Ingester) prepare(ctx context.Context, m *Manifest, d Design) (*vectorstore.Record, bool, error) {
	path := m.ImagePath(d)
	if !exists(path) {
		in.logger.Warn("design image not found", zap.String("design_id", d.ID), zap.String("path", path))
		return nil, true, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := assets.Validate(data); err != nil {
		in.logger.Warn("design image is not decodable", zap.String("design_id", d.ID), zap.Error(err))
		return nil, true, nil
	}

	vec, err := in.embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, false, err
	}
	return &vectorstore.Record{
		ID:                d.ID,
		ApplicationNumber: d.ApplicationNumber,
		ArticleName:       d.ArticleName,
		AdmstStat:         d.AdmstStat,
		ImagePath:         path,
		Embedding:         vec,
	}, false, nil
}
