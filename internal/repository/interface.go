package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Store is the persistent record store the pipeline and API read and write.
// Implementations must make UpdateRecordingStage/State atomic per recording.
type Store interface {
	// Recordings
	CreateRecording(ctx context.Context, rec *model.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*model.Recording, error)
	ListRecordings(ctx context.Context, limit, offset int) ([]model.Recording, error)
	CountRecordings(ctx context.Context) (int, error)

	// UpdateRecordingStage persists stage+progress in one write, before the
	// stage's work begins (optimistic progress reporting).
	UpdateRecordingStage(ctx context.Context, id uuid.UUID, stage model.Stage, progress int) error

	// UpdateRecordingState moves the recording to a terminal or reset state.
	UpdateRecordingState(ctx context.Context, id uuid.UUID, status model.Status, stage model.Stage, progress int, errMsg *string) error

	DeleteRecording(ctx context.Context, id uuid.UUID) error

	// Transcripts (one per recording, replaced on reprocess)
	CreateTranscript(ctx context.Context, tr *model.Transcript) error
	GetTranscriptByRecording(ctx context.Context, recordingID uuid.UUID) (*model.Transcript, error)
	DeleteTranscriptByRecording(ctx context.Context, recordingID uuid.UUID) error

	// Chunks (created in one batch per transcript)
	CreateChunks(ctx context.Context, chunks []model.Chunk) error
	ListChunksByRecording(ctx context.Context, recordingID uuid.UUID) ([]model.Chunk, error)
	DeleteChunksByRecording(ctx context.Context, recordingID uuid.UUID) error

	// Exchanges (append-only)
	CreateExchange(ctx context.Context, ex *model.Exchange) error
	ListExchangesByRecording(ctx context.Context, recordingID uuid.UUID, limit, offset int) ([]model.Exchange, error)
	DeleteExchange(ctx context.Context, id uuid.UUID) error
	DeleteExchangesByRecording(ctx context.Context, recordingID uuid.UUID) error
}
