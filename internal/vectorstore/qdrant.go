package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/designd/internal/config"
)

const (
	// payloadDesignID carries the design identifier; Qdrant point IDs must be UUIDs.
	payloadDesignID = "design_id"

	qdrantMaxMessageSize = 50 * 1024 * 1024
	qdrantMaxRetries     = 3
	qdrantRetryBackoff   = time.Second
)

// designNamespace scopes the UUIDv5 point IDs derived from design identifiers.
var designNamespace = uuid.MustParse("3b8f6f0e-6c7d-4d51-9a3e-2f1d8a0c5e71")

// qdrantAPI is the subset of *qdrant.Client the index uses.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantIndex is an Index backed by a remote Qdrant collection over gRPC.
// The collection uses cosine distance, so distance is 1 - score.
type QdrantIndex struct {
	client     qdrantAPI
	collection string
	dimension  int
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant, health-checks the connection and
// creates the collection when it does not exist yet.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimension int, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMessageSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	idx := newQdrantIndex(client, cfg.Collection, dimension, logger)
	if err := idx.init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func newQdrantIndex(client qdrantAPI, collection string, dimension int, logger *zap.Logger) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
		maxRetries: qdrantMaxRetries,
		backoff:    qdrantRetryBackoff,
		logger:     logger,
	}
}

func (q *QdrantIndex) init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Init")
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := q.client.HealthCheck(hctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	var exists bool
	err := q.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = q.client.CollectionExists(ctx, q.collection)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	err = q.retryOperation(ctx, "create_collection", func() error {
		return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", q.collection, err)
	}

	q.logger.Info("created qdrant collection",
		zap.String("collection", q.collection),
		zap.Int("dimension", q.dimension),
	)
	return nil
}

// Query returns up to k nearest neighbours ordered by descending score.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", q.collection),
		attribute.Int("k", k),
	)

	start := time.Now()
	res, err := q.query(ctx, vector, k)
	QueryDuration.WithLabelValues("qdrant").Observe(time.Since(start).Seconds())
	observeOperation("qdrant", "query", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", res.Len()))
	span.SetStatus(codes.Ok, "success")
	return res, nil
}

func (q *QdrantIndex) query(ctx context.Context, vector []float32, k int) (*QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), q.dimension)
	}

	var points []*qdrant.ScoredPoint
	err := q.retryOperation(ctx, "query", func() error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, q.collection)
		}
		return nil, fmt.Errorf("%w: searching collection %s: %v", ErrQueryFailed, q.collection, err)
	}

	out := EmptyResult()
	for _, p := range points {
		id, md := fromPayload(p.GetPayload())
		out.Append(id, distanceFromSimilarity(p.GetScore()), md)
	}
	return out, nil
}

// Upsert writes records. Point IDs are UUIDv5 values derived from the design ID.
func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("record_count", len(records)))

	err := q.upsert(ctx, records)
	observeOperation("qdrant", "upsert", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (q *QdrantIndex) upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record at index %d has no id", i)
		}
		if len(r.Embedding) != q.dimension {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Embedding), q.dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: toPayload(r),
		}
	}

	err := q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", q.collection, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Count")
	defer span.End()

	var n uint64
	err := q.retryOperation(ctx, "count", func() error {
		var err error
		n, err = q.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: q.collection,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting %s: %w", q.collection, err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// retryOperation retries transient gRPC failures with exponential backoff.
func (q *QdrantIndex) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := q.backoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return err
		}
		if attempt >= q.maxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, q.maxRetries, err)
		}

		q.logger.Debug("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// PointID derives the Qdrant point UUID for a design identifier.
func PointID(designID string) string {
	return uuid.NewSHA1(designNamespace, []byte(designID)).String()
}

func toPayload(r Record) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadDesignID: qdrant.NewValueString(r.ID),
	}
	for k, v := range r.Metadata() {
		payload[k] = qdrant.NewValueString(v)
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) (string, map[string]string) {
	var id string
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		s, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		if k == payloadDesignID {
			id = s.StringValue
			continue
		}
		md[k] = s.StringValue
	}
	return id, md
}
