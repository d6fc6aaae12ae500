// Package vectorstore holds the nearest-neighbour index of registered designs.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrCollectionNotFound is returned when the configured collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrQueryFailed wraps backend failures during a nearest-neighbour query.
	ErrQueryFailed = errors.New("vector query failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates an upsert with nothing to write.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metadata keys stored with each record.
const (
	MetaApplicationNumber = "applicationNumber"
	MetaArticleName       = "articleName"
	MetaAdmstStat         = "admstStat"
	MetaImagePath         = "imagePath"
)

// Record is one indexed drawing of a registered design.
// Several records may share an application number.
type Record struct {
	ID                string
	ApplicationNumber string
	ArticleName       string
	AdmstStat         string
	ImagePath         string
	Embedding         []float32
}

// Metadata returns the metadata snapshot stored alongside the vector.
// Empty fields are omitted so that a missing application number stays missing.
func (r Record) Metadata() map[string]string {
	md := make(map[string]string, 4)
	if r.ApplicationNumber != "" {
		md[MetaApplicationNumber] = r.ApplicationNumber
	}
	if r.ArticleName != "" {
		md[MetaArticleName] = r.ArticleName
	}
	if r.AdmstStat != "" {
		md[MetaAdmstStat] = r.AdmstStat
	}
	if r.ImagePath != "" {
		md[MetaImagePath] = r.ImagePath
	}
	return md
}

// QueryResult holds the neighbours of one query as parallel slices.
// Index i of each slice describes the same hit.
type QueryResult struct {
	IDs       []string
	Distances []float64
	Metadatas []map[string]string
}

// Len returns the number of hits.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// Append adds one hit to the result.
func (r *QueryResult) Append(id string, distance float64, md map[string]string) {
	r.IDs = append(r.IDs, id)
	r.Distances = append(r.Distances, distance)
	r.Metadatas = append(r.Metadatas, md)
}

// EmptyResult returns a result with non-nil, zero-length slices.
func EmptyResult() *QueryResult {
	return &QueryResult{
		IDs:       []string{},
		Distances: []float64{},
		Metadatas: []map[string]string{},
	}
}

// Index is a nearest-neighbour store keyed by design identifier.
type Index interface {
	// Query returns up to k nearest neighbours of vector, closest first.
	Query(ctx context.Context, vector []float32, k int) (*QueryResult, error)

	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Count returns the number of indexed records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// distanceFromSimilarity converts a cosine similarity to a non-negative distance.
func distanceFromSimilarity(sim float32) float64 {
	d := 1 - float64(sim)
	if d < 0 {
		return 0
	}
	return d
}
