package model

import (
	"time"

	"github.com/google/uuid"
)

// Citation is a time reference attached to a generated answer, pointing at
// a retrieved chunk of the recording.
type Citation struct {
	ChunkIndex int     `json:"chunk_index"`
	Timestamp  float64 `json:"timestamp"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Label      string  `json:"label"`
}

// SourceSnippet is one retrieved context window shown alongside an answer.
type SourceSnippet struct {
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Score      float64 `json:"score"`
}

// Exchange is one question/answer pair for a recording. Append-only: it is
// never mutated after creation.
type Exchange struct {
	ID          uuid.UUID       `json:"id"`
	RecordingID uuid.UUID       `json:"recording_id"`
	Question    string          `json:"question"`
	Answer      string          `json:"answer"`
	Citations   []Citation      `json:"citations"`
	Sources     []SourceSnippet `json:"sources"`
	CreatedAt   time.Time       `json:"created_at"`
}
