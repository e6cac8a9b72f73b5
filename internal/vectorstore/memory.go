package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryCapacity is the nominal record limit fullness is reported against.
// Growth past it is not blocked; the in-process index is meant for small
// local datasets only.
const memoryCapacity = 100_000

// MemoryIndex is an in-process cosine-similarity index. It backs local runs
// without a qdrant deployment and the test suites.
type MemoryIndex struct {
	mu        sync.RWMutex
	records   map[string]Record
	dimension int
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		records:   make(map[string]Record),
		dimension: dimension,
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, opts QueryOptions) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, r := range m.records {
		if opts.RecordingID != "" && r.Metadata.RecordingID != opts.RecordingID {
			continue
		}
		score := cosine(vector, r.Vector)
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Score: score, Metadata: r.Metadata})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if opts.TopK > 0 && len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (m *MemoryIndex) DeleteByRecording(_ context.Context, recordingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.Metadata.RecordingID == recordingID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fullness := float64(len(m.records)) / memoryCapacity
	if fullness > 1 {
		fullness = 1
	}
	return &Stats{Count: uint64(len(m.records)), Dimension: m.dimension, Fullness: fullness}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
