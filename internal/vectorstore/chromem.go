package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/vectorstore"

var tracer = otel.Tracer(instrumentationName)

// errNoEmbedder is returned if chromem ever tries to embed text itself.
// Every record and query arrives with a precomputed CLIP vector.
var errNoEmbedder = errors.New("chromem index only accepts precomputed embeddings")

// ChromemIndex is an embedded, persistent Index backed by chromem-go.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	dimension  int
	logger     *zap.Logger
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) the persistent database at cfg.Path.
func NewChromemIndex(cfg config.ChromemConfig, dimension int, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem index opened",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Bool("compress", cfg.Compress),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemIndex{
		db:         db,
		collection: collection,
		name:       cfg.Collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Query returns up to k nearest neighbours. Distance is 1 - cosine similarity.
func (c *ChromemIndex) Query(ctx context.Context, vector []float32, k int) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", c.name),
		attribute.Int("k", k),
	)

	start := time.Now()
	res, err := c.query(ctx, vector, k)
	QueryDuration.WithLabelValues("chromem").Observe(time.Since(start).Seconds())
	observeOperation("chromem", "query", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", res.Len()))
	span.SetStatus(codes.Ok, "success")
	return res, nil
}

func (c *ChromemIndex) query(ctx context.Context, vector []float32, k int) (*QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), c.dimension)
	}

	// chromem rejects nResults greater than the document count.
	count := c.collection.Count()
	if count == 0 {
		return EmptyResult(), nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection %s: %v", ErrQueryFailed, c.name, err)
	}

	out := EmptyResult()
	for _, r := range results {
		md := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			md[key] = v
		}
		out.Append(r.ID, distanceFromSimilarity(r.Similarity), md)
	}

	c.logger.Debug("queried chromem collection",
		zap.String("collection", c.name),
		zap.Int("k", k),
		zap.Int("results", out.Len()),
	)
	return out, nil
}

// Upsert adds records, overwriting any with the same ID.
func (c *ChromemIndex) Upsert(ctx context.Context, records []Record) error {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("record_count", len(records)))

	err := c.upsert(ctx, records)
	observeOperation("chromem", "upsert", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (c *ChromemIndex) upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record at index %d has no id", i)
		}
		if len(r.Embedding) != c.dimension {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Embedding), c.dimension)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.ArticleName,
			Metadata:  r.Metadata(),
			Embedding: r.Embedding,
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	c.logger.Debug("upserted records into chromem",
		zap.String("collection", c.name),
		zap.Int("count", len(records)),
	)
	return nil
}

// Count returns the number of documents in the collection.
func (c *ChromemIndex) Count(context.Context) (int, error) {
	return c.collection.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (c *ChromemIndex) Close() error {
	return nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
