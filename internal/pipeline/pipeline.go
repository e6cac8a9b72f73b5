package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
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

// Normalizer is the media decode capability the pipeline consumes.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
	Probe(ctx context.Context, path string) (*media.MediaInfo, error)
}

// Embedder is the batched embedding capability the pipeline consumes.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, []embedding.ItemError)
}

// stageProgress is the optimistic progress persisted on entering each stage.
var stageProgress = map[model.Stage]int{
	model.StageUploading:       0,
	model.StageExtractingAudio: 10,
	model.StageTranscribing:    25,
	model.StageChunking:        55,
	model.StageEmbedding:       70,
	model.StageStoring:         90,
	model.StageCompleted:       100,
}

// Pipeline drives one recording through normalization, transcription,
// chunking, embedding and vector storage. Stages run strictly sequentially;
// each stage transition is persisted before the stage's work starts.
type Pipeline struct {
	store          repository.Store
	normalizer     Normalizer
	transcriber    transcribe.Transcriber
	embedder       Embedder
	index          vectorstore.Index
	chunkOpts      chunker.Options
	embeddingModel string
	log            *logrus.Entry
}

func New(
	store repository.Store,
	normalizer Normalizer,
	transcriber transcribe.Transcriber,
	embedder Embedder,
	index vectorstore.Index,
	chunkOpts chunker.Options,
	embeddingModel string,
	log *logrus.Entry,
) *Pipeline {
	return &Pipeline{
		store:          store,
		normalizer:     normalizer,
		transcriber:    transcriber,
		embedder:       embedder,
		index:          index,
		chunkOpts:      chunkOpts,
		embeddingModel: embeddingModel,
		log:            log,
	}
}

// Start launches the pipeline for a recording on a detached goroutine.
// There is no cancellation primitive: a running pipeline is bounded only by
// the timeouts of its external calls.
func (p *Pipeline) Start(recordingID uuid.UUID) {
	go func() {
		if err := p.Run(context.Background(), recordingID); err != nil {
			p.log.WithFields(logrus.Fields{
				"recording_id": recordingID,
				"error":        err.Error(),
			}).Error("pipeline failed")
		}
	}()
}

// Run executes the full ingestion pipeline for one recording.
func (p *Pipeline) Run(ctx context.Context, recordingID uuid.UUID) error {
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	log := p.log.WithField("recording_id", recordingID.String())

	// EXTRACTING_AUDIO
	if err := p.advance(ctx, recordingID, model.StageExtractingAudio); err != nil {
		return err
	}
	audioPath, err := p.normalizer.Normalize(ctx, rec.MediaPath)
	if err != nil {
		return p.fail(ctx, recordingID, model.StageExtractingAudio, err)
	}
	defer os.Remove(audioPath)

	if info, probeErr := p.normalizer.Probe(ctx, audioPath); probeErr == nil {
		log.WithFields(logrus.Fields{
			"duration":           info.Duration,
			"estimated_cost_usd": transcribe.EstimateCost(info.Duration),
		}).Info("transcription cost estimate")
	}

	// TRANSCRIBING
	if err := p.advance(ctx, recordingID, model.StageTranscribing); err != nil {
		return err
	}
	result, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return p.fail(ctx, recordingID, model.StageTranscribing, err)
	}

	transcript := &model.Transcript{
		ID:          uuid.New(),
		RecordingID: recordingID,
		Text:        result.Text,
		Language:    result.Language,
		Duration:    result.Duration,
		Confidence:  meanConfidence(result.Segments),
		WordCount:   len(strings.Fields(result.Text)),
		CreatedAt:   time.Now(),
	}
	if err := p.store.CreateTranscript(ctx, transcript); err != nil {
		return p.fail(ctx, recordingID, model.StageTranscribing, err)
	}

	// CHUNKING
	if err := p.advance(ctx, recordingID, model.StageChunking); err != nil {
		return err
	}
	opts := chunker.Adaptive(len(result.Text), p.chunkOpts)
	chunks, err := chunker.Build(result.Text, result.Segments, opts)
	if err != nil {
		return p.fail(ctx, recordingID, model.StageChunking, err)
	}
	now := time.Now()
	for i := range chunks {
		chunks[i].ID = uuid.New()
		chunks[i].TranscriptID = transcript.ID
		chunks[i].RecordingID = recordingID
		chunks[i].CreatedAt = now
	}
	if err := p.store.CreateChunks(ctx, chunks); err != nil {
		return p.fail(ctx, recordingID, model.StageChunking, err)
	}
	log.WithFields(logrus.Fields{
		"chunks":     len(chunks),
		"chunk_size": opts.ChunkSize,
		"overlap":    opts.Overlap,
	}).Info("transcript chunked")

	// EMBEDDING
	if err := p.advance(ctx, recordingID, model.StageEmbedding); err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, itemErrs := p.embedder.EmbedTexts(ctx, texts)
	for _, ie := range itemErrs {
		log.WithFields(logrus.Fields{
			"chunk_index": ie.Index,
			"error":       ie.Err.Error(),
		}).Warn("chunk could not be embedded")
	}
	if allNil(vectors) {
		return p.fail(ctx, recordingID, model.StageEmbedding, fmt.Errorf("no chunk could be embedded"))
	}

	// STORING
	if err := p.advance(ctx, recordingID, model.StageStoring); err != nil {
		return err
	}
	records := make([]vectorstore.Record, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		records = append(records, vectorstore.Record{
			ID:     vectorstore.RecordID(recordingID.String(), c.Index),
			Vector: vectors[i],
			Metadata: vectorstore.Metadata{
				RecordingID: recordingID.String(),
				ChunkIndex:  c.Index,
				Start:       c.Start,
				End:         c.End,
				Snippet:     snippet(c.Text),
				Model:       p.embeddingModel,
			},
		})
	}
	if err := p.index.Upsert(ctx, records); err != nil {
		return p.fail(ctx, recordingID, model.StageStoring, err)
	}

	// COMPLETED
	if err := p.store.UpdateRecordingState(ctx, recordingID, model.StatusReady, model.StageCompleted, 100, nil); err != nil {
		return err
	}
	log.WithField("vectors", len(records)).Info("pipeline completed")
	return nil
}

// Reprocess purges the previous run's artifacts and resets the recording to
// the initial stage. Rejected while a pipeline is still active. The caller
// starts a new run afterwards.
func (p *Pipeline) Reprocess(ctx context.Context, recordingID uuid.UUID) error {
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec.Status == model.StatusProcessing && !rec.Stage.Terminal() {
		return fmt.Errorf("recording is still processing (stage %s): %w", rec.Stage, model.ErrConflict)
	}

	// Vectors go first so no index entry ever points at a deleted chunk.
	if err := p.index.DeleteByRecording(ctx, recordingID.String()); err != nil {
		return fmt.Errorf("purge vectors: %w", err)
	}
	if err := p.store.DeleteChunksByRecording(ctx, recordingID); err != nil {
		return fmt.Errorf("purge chunks: %w", err)
	}
	if err := p.store.DeleteTranscriptByRecording(ctx, recordingID); err != nil {
		return fmt.Errorf("purge transcript: %w", err)
	}

	return p.store.UpdateRecordingState(ctx, recordingID, model.StatusProcessing, model.StageUploading, 0, nil)
}

// advance persists the stage transition before the stage's work runs.
func (p *Pipeline) advance(ctx context.Context, id uuid.UUID, stage model.Stage) error {
	return p.store.UpdateRecordingStage(ctx, id, stage, stageProgress[stage])
}

// fail marks the recording failed and best-effort deletes vectors already
// written for it. Transcript and chunks already committed are kept.
func (p *Pipeline) fail(ctx context.Context, id uuid.UUID, stage model.Stage, cause error) error {
	stageErr := &model.StageError{Stage: stage, Err: cause}
	msg := stageErr.Error()
	if err := p.store.UpdateRecordingState(ctx, id, model.StatusFailed, model.StageFailed, stageProgress[stage], &msg); err != nil {
		p.log.WithField("recording_id", id).WithField("error", err.Error()).Error("could not persist failure state")
	}
	if err := p.index.DeleteByRecording(ctx, id.String()); err != nil {
		p.log.WithField("recording_id", id).WithField("error", err.Error()).Warn("partial vector cleanup failed")
	}
	return stageErr
}

func meanConfidence(segments []model.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += s.Confidence
	}
	return sum / float64(len(segments))
}

func allNil(vectors [][]float32) bool {
	for _, v := range vectors {
		if v != nil {
			return false
		}
	}
	return true
}

const snippetMax = 500

// snippet caps the payload preview, cutting on a rune boundary so the stored
// text stays valid UTF-8.
func snippet(text string) string {
	if len(text) <= snippetMax {
		return text
	}
	cut := snippetMax
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
