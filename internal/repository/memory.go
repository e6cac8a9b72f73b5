package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// memoryStore keeps all records in mutex-guarded maps. It backs local runs
// without DATABASE_URL and the test suites.
type memoryStore struct {
	mu          sync.RWMutex
	recordings  map[uuid.UUID]*model.Recording
	transcripts map[uuid.UUID]*model.Transcript // keyed by recording id
	chunks      map[uuid.UUID][]model.Chunk     // keyed by recording id
	exchanges   map[uuid.UUID]*model.Exchange
}

// NewMemoryStore creates an in-memory record store.
func NewMemoryStore() Store {
	return &memoryStore{
		recordings:  make(map[uuid.UUID]*model.Recording),
		transcripts: make(map[uuid.UUID]*model.Transcript),
		chunks:      make(map[uuid.UUID][]model.Chunk),
		exchanges:   make(map[uuid.UUID]*model.Exchange),
	}
}

func (s *memoryStore) CreateRecording(_ context.Context, rec *model.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recordings[rec.ID] = &cp
	return nil
}

func (s *memoryStore) GetRecording(_ context.Context, id uuid.UUID) (*model.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, fmt.Errorf("recording %s: %w", id, model.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) ListRecordings(_ context.Context, limit, offset int) ([]model.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]model.Recording, 0, len(s.recordings))
	for _, rec := range s.recordings {
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memoryStore) CountRecordings(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recordings), nil
}

func (s *memoryStore) UpdateRecordingStage(_ context.Context, id uuid.UUID, stage model.Stage, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return fmt.Errorf("recording %s: %w", id, model.ErrNotFound)
	}
	rec.Stage = stage
	rec.Progress = progress
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) UpdateRecordingState(_ context.Context, id uuid.UUID, status model.Status, stage model.Stage, progress int, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return fmt.Errorf("recording %s: %w", id, model.ErrNotFound)
	}
	rec.Status = status
	rec.Stage = stage
	rec.Progress = progress
	rec.Error = errMsg
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) DeleteRecording(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recordings[id]; !ok {
		return fmt.Errorf("recording %s: %w", id, model.ErrNotFound)
	}
	delete(s.recordings, id)
	return nil
}

func (s *memoryStore) CreateTranscript(_ context.Context, tr *model.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tr
	s.transcripts[tr.RecordingID] = &cp
	return nil
}

func (s *memoryStore) GetTranscriptByRecording(_ context.Context, recordingID uuid.UUID) (*model.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.transcripts[recordingID]
	if !ok {
		return nil, fmt.Errorf("transcript for recording %s: %w", recordingID, model.ErrNotFound)
	}
	cp := *tr
	return &cp, nil
}

func (s *memoryStore) DeleteTranscriptByRecording(_ context.Context, recordingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, recordingID)
	return nil
}

func (s *memoryStore) CreateChunks(_ context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recID := chunks[0].RecordingID
	s.chunks[recID] = append(s.chunks[recID], chunks...)
	return nil
}

func (s *memoryStore) ListChunksByRecording(_ context.Context, recordingID uuid.UUID) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]model.Chunk(nil), s.chunks[recordingID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *memoryStore) DeleteChunksByRecording(_ context.Context, recordingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, recordingID)
	return nil
}

func (s *memoryStore) CreateExchange(_ context.Context, ex *model.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ex
	s.exchanges[ex.ID] = &cp
	return nil
}

func (s *memoryStore) ListExchangesByRecording(_ context.Context, recordingID uuid.UUID, limit, offset int) ([]model.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []model.Exchange
	for _, ex := range s.exchanges {
		if ex.RecordingID == recordingID {
			list = append(list, *ex)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *memoryStore) DeleteExchange(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exchanges[id]; !ok {
		return fmt.Errorf("exchange %s: %w", id, model.ErrNotFound)
	}
	delete(s.exchanges, id)
	return nil
}

func (s *memoryStore) DeleteExchangesByRecording(_ context.Context, recordingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ex := range s.exchanges {
		if ex.RecordingID == recordingID {
			delete(s.exchanges, id)
		}
	}
	return nil
}
