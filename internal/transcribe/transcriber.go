package transcribe

import (
	"context"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Result is the full output of one transcription call.
type Result struct {
	Text     string
	Language string
	Duration float64
	Segments []model.Segment
}

// Transcriber converts normalized audio into text plus time-coded segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)

	// Name returns the backing engine name (e.g. "whisper")
	Name() string
}

// CostPerMinuteUSD is the linear transcription rate used for estimates.
const CostPerMinuteUSD = 0.006

// EstimateCost is a pure function of audio duration, exposed so the
// orchestrator can log the projected spend before committing to the call.
func EstimateCost(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return durationSeconds / 60.0 * CostPerMinuteUSD
}
