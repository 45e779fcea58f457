// Package feature turns threat events into numeric vectors for the
// detector. The encoding is deterministic across processes and
// restarts so that a persisted model keeps scoring consistently.
package feature

import (
	"hash/fnv"

	"ThreatLens/internal/domain/models"
)

// SchemaVersion identifies the feature layout. Bump it whenever the
// vector shape or the hashing scheme changes; models trained under a
// different version must not score new vectors.
const SchemaVersion = 1

// Width is the number of features per vector.
const Width = 4

const hashBuckets = 1000

// hashBucket maps an identifier string into a stable numeric bucket.
// FNV-1a is pinned deliberately: the bucket values feed trained models
// on disk and must not change between runs or hosts.
func hashBucket(s string) float64 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return float64(h.Sum32() % hashBuckets)
}

// Encode builds the feature vector for one event:
// epoch seconds, source address bucket, username bucket, event value.
func Encode(e *models.ThreatEvent) []float64 {
	return []float64{
		float64(e.Timestamp.Unix()),
		hashBucket(e.SourceAddr),
		hashBucket(e.Username),
		e.EventValue,
	}
}

// EncodeAll builds the training matrix for a batch of events.
func EncodeAll(events []*models.ThreatEvent) [][]float64 {
	out := make([][]float64, len(events))
	for i, e := range events {
		out[i] = Encode(e)
	}
	return out
}
