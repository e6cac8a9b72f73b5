package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the coarse lifecycle of a recording.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Stage is the fine-grained pipeline position of a recording.
type Stage string

const (
	StageUploading       Stage = "UPLOADING"
	StageExtractingAudio Stage = "EXTRACTING_AUDIO"
	StageTranscribing    Stage = "TRANSCRIBING"
	StageChunking        Stage = "CHUNKING"
	StageEmbedding       Stage = "EMBEDDING"
	StageStoring         Stage = "STORING"
	StageCompleted       Stage = "COMPLETED"
	StageFailed          Stage = "FAILED"
)

// Terminal reports whether no further pipeline work will happen in this stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Recording represents an uploaded lecture recording and its processing state.
// Only the active pipeline run mutates Stage/Progress/Status.
type Recording struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	MediaPath string    `json:"media_path"`
	SizeBytes int64     `json:"size_bytes"`
	MimeType  string    `json:"mime_type"`
	Status    Status    `json:"status"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
