package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
	"github.com/fyrsmithlabs/designd/internal/sanitize"
)

// NewIndex builds the Index selected by cfg.Provider.
func NewIndex(ctx context.Context, cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.Chromem.Collection = collectionName(cfg.Chromem.Collection, logger)
	cfg.Qdrant.Collection = collectionName(cfg.Qdrant.Collection, logger)

	switch strings.ToLower(cfg.Provider) {
	case "", "chromem":
		return NewChromemIndex(cfg.Chromem, dimension, logger.Named("chromem"))
	case "qdrant":
		return NewQdrantIndex(ctx, cfg.Qdrant, dimension, logger.Named("qdrant"))
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// collectionName normalizes a configured collection name. Empty stays empty
// so the backends can reject it.
func collectionName(name string, logger *zap.Logger) string {
	if name == "" {
		return ""
	}
	clean := sanitize.Identifier(name)
	if clean != name {
		logger.Warn("collection name normalized",
			zap.String("configured", name),
			zap.String("collection", clean),
		)
	}
	return clean
}
