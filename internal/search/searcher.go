package search

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/search"

// Searcher queries an index and applies the application-number filter.
type Searcher struct {
	index     vectorstore.Index
	logger    *zap.Logger
	collapsed metric.Int64Counter
}

// NewSearcher creates a Searcher over index.
func NewSearcher(index vectorstore.Index, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{
		index:  index,
		logger: logger,
	}

	meter := otel.Meter(instrumentationName)
	var err error
	s.collapsed, err = meter.Int64Counter(
		"designd.search.collapsed_hits",
		metric.WithDescription("Hits dropped because a closer hit shared their application number"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		logger.Warn("failed to create collapsed_hits counter", zap.Error(err))
	}
	return s
}

// SearchAndFilter queries the n nearest neighbours of vector and keeps the
// closest hit per application number.
func (s *Searcher) SearchAndFilter(ctx context.Context, vector []float32, n int) (*vectorstore.QueryResult, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "search.SearchAndFilter")
	defer span.End()
	span.SetAttributes(attribute.Int("n", n))

	raw, err := s.index.Query(ctx, vector, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	filtered := Filter(raw)
	dropped := raw.Len() - filtered.Len()
	if s.collapsed != nil && dropped > 0 {
		s.collapsed.Add(ctx, int64(dropped))
	}

	span.SetAttributes(
		attribute.Int("raw_count", raw.Len()),
		attribute.Int("filtered_count", filtered.Len()),
	)
	s.logger.Debug("search filtered",
		zap.Int("raw", raw.Len()),
		zap.Int("kept", filtered.Len()),
	)
	return filtered, nil
}
