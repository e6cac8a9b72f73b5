package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// MaxAudioBytes is the Whisper API upload ceiling. Larger files are still
// attempted so the rejection surfaces as a typed error instead of a silent
// truncation; splitting oversize audio into sub-segments is not implemented.
const MaxAudioBytes = 25 * 1024 * 1024

// WhisperTranscriber transcribes audio through the OpenAI Whisper API with
// verbose-JSON output so segment timings come back with the text.
type WhisperTranscriber struct {
	client *openai.Client
	log    *logrus.Entry
}

func NewWhisperTranscriber(client *openai.Client, log *logrus.Entry) *WhisperTranscriber {
	return &WhisperTranscriber{client: client, log: log}
}

func (t *WhisperTranscriber) Name() string { return "whisper" }

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrIO, audioPath)
	}

	oversize := info.Size() > MaxAudioBytes
	if oversize {
		t.log.WithFields(logrus.Fields{
			"bytes": info.Size(),
			"limit": MaxAudioBytes,
		}).Warn("audio exceeds whisper upload limit, attempting anyway")
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if oversize {
			return nil, fmt.Errorf("%w: %d bytes", model.ErrPayloadTooLarge, info.Size())
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode == 413 {
				return nil, fmt.Errorf("%w: %d bytes", model.ErrPayloadTooLarge, info.Size())
			}
			if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
				return nil, model.Transient(err)
			}
		}
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	segments := make([]model.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, model.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Confidence: segmentConfidence(s.AvgLogprob, s.NoSpeechProb),
		})
	}

	t.log.WithFields(logrus.Fields{
		"language": resp.Language,
		"duration": resp.Duration,
		"segments": len(segments),
		"chars":    len(resp.Text),
	}).Info("transcription complete")

	return &Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: segments,
	}, nil
}

// segmentConfidence turns whisper's avg_logprob into a 0..1 proxy, discounted
// when the no-speech probability dominates the window.
func segmentConfidence(avgLogprob, noSpeechProb float64) float64 {
	conf := math.Exp(avgLogprob)
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	if noSpeechProb > 0.5 {
		conf *= 0.5
	}
	return conf
}
