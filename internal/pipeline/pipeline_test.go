package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/chunker"
	"github.com/lokeshpanthangi/lecturechat/internal/embedding"
	"github.com/lokeshpanthangi/lecturechat/internal/media"
	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/repository"
	"github.com/lokeshpanthangi/lecturechat/internal/transcribe"
	"github.com/lokeshpanthangi/lecturechat/internal/vectorstore"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(_ context.Context, inputPath string) (string, error) {
	return inputPath + ".wav", nil
}

func (fakeNormalizer) Probe(context.Context, string) (*media.MediaInfo, error) {
	return &media.MediaInfo{Duration: 120, Channels: 1, Codec: "pcm_s16le"}, nil
}

type fakeTranscriber struct {
	result *transcribe.Result
	err    error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (*transcribe.Result, error) {
	return f.result, f.err
}

func (f *fakeTranscriber) Name() string { return "fake" }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, []embedding.ItemError) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, float32(i), 0}
	}
	return vecs, nil
}

func lectureResult() *transcribe.Result {
	var sb strings.Builder
	var segments []model.Segment
	for i := 0; i < 40; i++ {
		seg := model.Segment{
			Start:      float64(i * 6),
			End:        float64(i*6 + 6),
			Text:       fmt.Sprintf("segment %03d covers yet another part of the lecture material ", i),
			Confidence: 0.9,
		}
		sb.WriteString(seg.Text)
		segments = append(segments, seg)
	}
	return &transcribe.Result{
		Text:     strings.TrimSpace(sb.String()),
		Language: "en",
		Duration: 240,
		Segments: segments,
	}
}

func newTestPipeline(tr transcribe.Transcriber) (*Pipeline, repository.Store, *vectorstore.MemoryIndex) {
	store := repository.NewMemoryStore()
	index := vectorstore.NewMemoryIndex(3)
	p := New(store, fakeNormalizer{}, tr, fakeEmbedder{}, index,
		chunker.Options{ChunkSize: 400, Overlap: 80}, "text-embedding-3-small", testLog())
	return p, store, index
}

func seedRecording(t *testing.T, store repository.Store) uuid.UUID {
	t.Helper()
	rec := &model.Recording{
		ID:        uuid.New(),
		Title:     "distributed systems lecture",
		MediaPath: "/tmp/lecture.mp4",
		SizeBytes: 1024,
		MimeType:  "video/mp4",
		Status:    model.StatusProcessing,
		Stage:     model.StageUploading,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	return rec.ID
}

func TestRunCompletesPipeline(t *testing.T) {
	p, store, index := newTestPipeline(&fakeTranscriber{result: lectureResult()})
	id := seedRecording(t, store)
	ctx := context.Background()

	if err := p.Run(ctx, id); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, err := store.GetRecording(ctx, id)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if rec.Status != model.StatusReady || rec.Stage != model.StageCompleted || rec.Progress != 100 {
		t.Errorf("recording state = %s/%s/%d, want ready/COMPLETED/100", rec.Status, rec.Stage, rec.Progress)
	}
	if rec.Error != nil {
		t.Errorf("error = %q, want nil", *rec.Error)
	}

	tr, err := store.GetTranscriptByRecording(ctx, id)
	if err != nil {
		t.Fatalf("GetTranscriptByRecording: %v", err)
	}
	if tr.Language != "en" || tr.WordCount == 0 {
		t.Errorf("transcript = %+v", tr)
	}

	chunks, err := store.ListChunksByRecording(ctx, id)
	if err != nil {
		t.Fatalf("ListChunksByRecording: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.TranscriptID != tr.ID {
			t.Errorf("chunk %d not linked to transcript", i)
		}
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != uint64(len(chunks)) {
		t.Errorf("vector count = %d, want %d", stats.Count, len(chunks))
	}
}

func TestRunFailsOnTranscription(t *testing.T) {
	p, store, index := newTestPipeline(&fakeTranscriber{err: errors.New("whisper unavailable")})
	id := seedRecording(t, store)
	ctx := context.Background()

	err := p.Run(ctx, id)
	if err == nil {
		t.Fatal("expected stage error")
	}
	var stageErr *model.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != model.StageTranscribing {
		t.Errorf("err = %v, want transcribing stage error", err)
	}

	rec, _ := store.GetRecording(ctx, id)
	if rec.Status != model.StatusFailed || rec.Stage != model.StageFailed {
		t.Errorf("recording state = %s/%s, want failed/FAILED", rec.Status, rec.Stage)
	}
	if rec.Error == nil || !strings.Contains(*rec.Error, "whisper unavailable") {
		t.Errorf("error message = %v", rec.Error)
	}

	if _, err := store.GetTranscriptByRecording(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("transcript should not exist, got %v", err)
	}
	stats, _ := index.Stats(ctx)
	if stats.Count != 0 {
		t.Errorf("vectors = %d after cleanup, want 0", stats.Count)
	}
}

func TestReprocessRejectedWhileActive(t *testing.T) {
	p, store, _ := newTestPipeline(&fakeTranscriber{result: lectureResult()})
	id := seedRecording(t, store)
	ctx := context.Background()

	if err := store.UpdateRecordingStage(ctx, id, model.StageEmbedding, 70); err != nil {
		t.Fatalf("UpdateRecordingStage: %v", err)
	}

	if err := p.Reprocess(ctx, id); !errors.Is(err, model.ErrConflict) {
		t.Errorf("Reprocess = %v, want conflict", err)
	}
}

func TestReprocessPurgesFailedRecording(t *testing.T) {
	p, store, index := newTestPipeline(&fakeTranscriber{result: lectureResult()})
	id := seedRecording(t, store)
	ctx := context.Background()

	// First run succeeds and leaves artifacts behind.
	if err := p.Run(ctx, id); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Then the recording lands in FAILED.
	msg := "stage STORING: upstream down"
	if err := store.UpdateRecordingState(ctx, id, model.StatusFailed, model.StageFailed, 90, &msg); err != nil {
		t.Fatalf("UpdateRecordingState: %v", err)
	}

	if err := p.Reprocess(ctx, id); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}

	rec, _ := store.GetRecording(ctx, id)
	if rec.Status != model.StatusProcessing || rec.Stage != model.StageUploading || rec.Progress != 0 {
		t.Errorf("recording state = %s/%s/%d, want processing/UPLOADING/0", rec.Status, rec.Stage, rec.Progress)
	}
	if rec.Error != nil {
		t.Errorf("error = %q, want cleared", *rec.Error)
	}

	chunks, _ := store.ListChunksByRecording(ctx, id)
	if len(chunks) != 0 {
		t.Errorf("chunks = %d after purge, want 0", len(chunks))
	}
	if _, err := store.GetTranscriptByRecording(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("transcript should be purged, got %v", err)
	}
	stats, _ := index.Stats(ctx)
	if stats.Count != 0 {
		t.Errorf("vectors = %d after purge, want 0", stats.Count)
	}
}

func TestSnippetCutsOnRuneBoundary(t *testing.T) {
	short := "a brief chunk"
	if got := snippet(short); got != short {
		t.Errorf("short text altered: %q", got)
	}

	// 600 bytes of 3-byte runes; the 500-byte cap lands mid-rune.
	got := snippet(strings.Repeat("日", 200))
	if len(got) > snippetMax {
		t.Errorf("snippet is %d bytes, cap is %d", len(got), snippetMax)
	}
	if !utf8.ValidString(got) {
		t.Error("snippet is not valid UTF-8")
	}
}
