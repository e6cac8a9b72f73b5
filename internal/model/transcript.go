package model

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is the full text produced for one recording. It is replaced,
// never appended to, when the recording is reprocessed.
type Transcript struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	Confidence  float64   `json:"confidence"`
	WordCount   int       `json:"word_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Segment is a raw time-coded fragment straight from the transcriber.
// Segments are contiguous, non-overlapping and ordered by Start; they are
// never persisted on their own.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Chunk is an overlapping span of transcript text, the unit of embedding and
// retrieval. For increasing Index, Start is non-decreasing and Start <= End.
type Chunk struct {
	ID           uuid.UUID `json:"id"`
	TranscriptID uuid.UUID `json:"transcript_id"`
	RecordingID  uuid.UUID `json:"recording_id"`
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	Length       int       `json:"length"`
	WordCount    int       `json:"word_count"`
	Start        float64   `json:"start"`
	End          float64   `json:"end"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}
