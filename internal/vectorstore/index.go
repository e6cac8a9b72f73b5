package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Metadata travels with every vector so matches can be cited without a
// round-trip to the record store.
type Metadata struct {
	RecordingID string  `json:"recording_id"`
	ChunkIndex  int     `json:"chunk_index"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Snippet     string  `json:"text"`
	Model       string  `json:"model"`
}

// Record is one entry in the external vector index: exactly one per
// successfully embedded chunk.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one ranked similarity hit.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// QueryOptions scopes a similarity query to one recording with a score floor.
type QueryOptions struct {
	TopK        int
	RecordingID string
	MinScore    float64
}

// Stats summarizes the index for the stats endpoint. Fullness is the
// occupied fraction of the index's capacity in [0, 1]; backends without a
// capacity bound report 0.
type Stats struct {
	Count     uint64  `json:"count"`
	Dimension int     `json:"dimension"`
	Fullness  float64 `json:"fullness"`
}

// Index stores chunk vectors and serves similarity queries filtered by
// recording identity.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error)
	DeleteByRecording(ctx context.Context, recordingID string) error
	Stats(ctx context.Context) (*Stats, error)
}

// RecordID synthesizes the composite vector identity. The random suffix
// keeps ids from colliding across reprocessing runs of the same recording.
func RecordID(recordingID string, chunkIndex int) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s_chunk_%d_%s", recordingID, chunkIndex, suffix)
}
