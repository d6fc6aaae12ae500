// Package search runs nearest-neighbour queries and collapses hits that
// belong to the same design application.
package search

import (
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

// MissingApplicationNumber is the dedup key for hits without an application number.
// All such hits share one bucket, so only the closest one survives.
const MissingApplicationNumber = "N/A"

type bucket struct {
	id       string
	distance float64
	metadata map[string]string
}

// Filter keeps one hit per application number: the one with the smallest
// distance. Ties keep the earlier hit.
//
// Keys are emitted in the order they were first seen. A key keeps its
// position when a later, closer hit replaces its entry, so the output is
// not necessarily sorted by distance.
//
// Hits past the end of Distances are dropped; a missing metadata entry is
// treated as empty.
func Filter(res *vectorstore.QueryResult) *vectorstore.QueryResult {
	out := vectorstore.EmptyResult()
	if res.Len() == 0 {
		return out
	}

	order := make([]string, 0, res.Len())
	best := make(map[string]*bucket, res.Len())

	for i, id := range res.IDs {
		if i >= len(res.Distances) {
			break
		}
		var md map[string]string
		if i < len(res.Metadatas) {
			md = res.Metadatas[i]
		}
		dist := res.Distances[i]
		key := ApplicationKey(md)

		cur, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = &bucket{id: id, distance: dist, metadata: md}
			continue
		}
		if dist < cur.distance {
			cur.id, cur.distance, cur.metadata = id, dist, md
		}
	}

	for _, key := range order {
		b := best[key]
		out.Append(b.id, b.distance, b.metadata)
	}
	return out
}

// ApplicationKey returns the dedup key for a metadata snapshot.
// Only an absent field maps to MissingApplicationNumber.
func ApplicationKey(md map[string]string) string {
	if v, ok := md[vectorstore.MetaApplicationNumber]; ok {
		return v
	}
	return MissingApplicationNumber
}
