package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/embeddings"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

// EmbeddingFailedMessage is returned to the model when the query cannot be embedded.
const EmbeddingFailedMessage = "임베딩 생성 실패"

const missingField = "N/A"

// Searcher finds the nearest designs to a vector, one per application.
type Searcher interface {
	SearchAndFilter(ctx context.Context, vector []float32, n int) (*vectorstore.QueryResult, error)
}

// DesignSearch searches the design index by natural-language description.
type DesignSearch struct {
	embedder embeddings.Provider
	searcher Searcher
	n        int
	logger   *zap.Logger
}

// NewDesignSearch creates a DesignSearch returning up to n designs.
func NewDesignSearch(embedder embeddings.Provider, searcher Searcher, n int, logger *zap.Logger) *DesignSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n <= 0 {
		n = 5
	}
	return &DesignSearch{embedder: embedder, searcher: searcher, n: n, logger: logger}
}

// Search embeds query (translating Korean first) and lists the closest designs.
func (d *DesignSearch) Search(ctx context.Context, query string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "tools.search_design_db")
	defer span.End()
	span.SetAttributes(attribute.Int("n", d.n))

	vec, translated, err := d.embedder.EmbedText(ctx, query)
	if err != nil {
		d.logger.Warn("text embedding failed", zap.Error(err))
		span.RecordError(err)
		return EmbeddingFailedMessage, nil
	}

	res, err := d.searcher.SearchAndFilter(ctx, vec, d.n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrSearchFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	span.SetAttributes(attribute.Int("results_count", res.Len()))
	return FormatDesignResults(query, translated, res), nil
}

// FormatDesignResults renders design hits for the model.
func FormatDesignResults(query, translated string, res *vectorstore.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' 검색 결과 (번역: '%s'):\n\n", query, translated)
	for i := 0; i < res.Len(); i++ {
		md := res.Metadatas[i]
		fmt.Fprintf(&b, "%d. %s\n   출원번호: %s\n   등록상태: %s\n   유사도 거리: %.4f\n\n",
			i+1,
			field(md, vectorstore.MetaArticleName),
			field(md, vectorstore.MetaApplicationNumber),
			field(md, vectorstore.MetaAdmstStat),
			res.Distances[i],
		)
	}
	return b.String()
}

func field(md map[string]string, key string) string {
	if v, ok := md[key]; ok {
		return v
	}
	return missingField
}
