package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/chunker"
	"github.com/lokeshpanthangi/lecturechat/internal/media"
	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/pipeline"
	"github.com/lokeshpanthangi/lecturechat/internal/rag"
	"github.com/lokeshpanthangi/lecturechat/internal/repository"
	"github.com/lokeshpanthangi/lecturechat/internal/transcribe"
	"github.com/lokeshpanthangi/lecturechat/internal/vectorstore"
)

type stubNormalizer struct{}

func (stubNormalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	return inputPath, nil
}

func (stubNormalizer) Probe(ctx context.Context, path string) (*media.MediaInfo, error) {
	return &media.MediaInfo{Duration: 60}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error) {
	return &transcribe.Result{
		Text:     "hello from the lecture hall today we cover sorting",
		Language: "en",
		Duration: 60,
		Segments: []model.Segment{{Start: 0, End: 60, Text: "hello from the lecture hall today we cover sorting", Confidence: 0.9}},
	}, nil
}

func (stubTranscriber) Name() string { return "stub" }

type stubQueryEmbedder struct{}

func (stubQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "the answer is at [00:10]", nil
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	router *gin.Engine
	store  repository.Store
	index  vectorstore.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	index := vectorstore.NewMemoryIndex(3)
	engine := rag.NewEngine(store, stubQueryEmbedder{}, index, stubGenerator{}, testLog())
	pipe := pipeline.New(store, stubNormalizer{}, stubTranscriber{}, nil, index,
		chunker.Options{ChunkSize: 400, Overlap: 80}, "test-model", testLog())

	h := NewHandler(store, pipe, engine, index, t.TempDir(), testLog())
	r := gin.New()
	h.RegisterRoutes(r)

	return &fixture{router: r, store: store, index: index}
}

func (f *fixture) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func seedRecording(t *testing.T, store repository.Store, status model.Status, stage model.Stage) *model.Recording {
	t.Helper()
	rec := &model.Recording{
		ID:        uuid.New(),
		Title:     "algorithms lecture 3",
		MediaPath: "",
		SizeBytes: 1024,
		MimeType:  "audio/wav",
		Status:    status,
		Stage:     stage,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("seed recording: %v", err)
	}
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body missing status ok: %s", w.Body.String())
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(fw, "plain text, not media")
	mw.Close()

	w := f.do(http.MethodPost, "/api/v1/recordings", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for .txt upload, got %d", w.Code)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "no file attached")
	mw.Close()

	w := f.do(http.MethodPost, "/api/v1/recordings", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a file part, got %d", w.Code)
	}
}

func TestGetRecordingInvalidID(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/recordings/not-a-uuid", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestGetRecordingNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/recordings/"+uuid.NewString(), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown recording, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := seedRecording(t, f.store, model.StatusProcessing, model.StageEmbedding)

	w := f.do(http.MethodGet, "/api/v1/recordings/"+rec.ID.String()+"/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Status string `json:"status"`
			Stage  string `json:"stage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Status != string(model.StatusProcessing) {
		t.Errorf("status = %q, want processing", resp.Data.Status)
	}
	if resp.Data.Stage != string(model.StageEmbedding) {
		t.Errorf("stage = %q, want EMBEDDING", resp.Data.Stage)
	}
}

func TestListRecordingsPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		seedRecording(t, f.store, model.StatusReady, model.StageCompleted)
	}

	w := f.do(http.MethodGet, "/api/v1/recordings?limit=2&offset=0", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Recordings []json.RawMessage `json:"recordings"`
			Total      int               `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Recordings) != 2 {
		t.Errorf("page size = %d, want 2", len(resp.Data.Recordings))
	}
	if resp.Data.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Data.Total)
	}
}

func TestAskRejectsWhileProcessing(t *testing.T) {
	f := newFixture(t)
	rec := seedRecording(t, f.store, model.StatusProcessing, model.StageTranscribing)

	body := strings.NewReader(`{"question":"what is covered here?"}`)
	w := f.do(http.MethodPost, "/api/v1/recordings/"+rec.ID.String()+"/ask", body, "application/json")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for processing recording, got %d", w.Code)
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	f := newFixture(t)
	rec := seedRecording(t, f.store, model.StatusReady, model.StageCompleted)

	body := strings.NewReader(`{"question":""}`)
	w := f.do(http.MethodPost, "/api/v1/recordings/"+rec.ID.String()+"/ask", body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank question, got %d", w.Code)
	}
}

func TestReprocessConflictWhileActive(t *testing.T) {
	f := newFixture(t)
	rec := seedRecording(t, f.store, model.StatusProcessing, model.StageChunking)

	w := f.do(http.MethodPost, "/api/v1/recordings/"+rec.ID.String()+"/reprocess", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while pipeline is active, got %d", w.Code)
	}
}

func TestDeleteRecordingCascades(t *testing.T) {
	f := newFixture(t)
	rec := seedRecording(t, f.store, model.StatusReady, model.StageCompleted)
	ctx := context.Background()

	ex := &model.Exchange{
		ID:          uuid.New(),
		RecordingID: rec.ID,
		Question:    "q",
		Answer:      "a",
		Citations:   []model.Citation{},
		Sources:     []model.SourceSnippet{},
		CreatedAt:   time.Now(),
	}
	if err := f.store.CreateExchange(ctx, ex); err != nil {
		t.Fatalf("seed exchange: %v", err)
	}

	w := f.do(http.MethodDelete, "/api/v1/recordings/"+rec.ID.String(), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := f.store.GetRecording(ctx, rec.ID); err == nil {
		t.Error("recording still present after delete")
	}
	exchanges, err := f.store.ListExchangesByRecording(ctx, rec.ID, 10, 0)
	if err != nil {
		t.Fatalf("list exchanges: %v", err)
	}
	if len(exchanges) != 0 {
		t.Errorf("exchanges not cascaded: %d left", len(exchanges))
	}
}

func TestDeleteExchangeInvalidID(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodDelete, "/api/v1/exchanges/garbage", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestIndexStats(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/index/stats", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
