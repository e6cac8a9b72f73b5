package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Normalizer extracts a mono 16 kHz WAV stream from arbitrary audio/video
// input using ffmpeg. The input file is never mutated; exactly one temporary
// output file is written per call.
type Normalizer struct {
	tmpDir string
	log    *logrus.Entry
}

// MediaInfo is the probe result used for downstream cost estimation.
type MediaInfo struct {
	Duration float64 `json:"duration"`
	Channels int     `json:"channels"`
	BitRate  int     `json:"bit_rate"`
	Codec    string  `json:"codec"`
}

func NewNormalizer(tmpDir string, log *logrus.Entry) *Normalizer {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Normalizer{tmpDir: tmpDir, log: log}
}

// Normalize converts the input to single-channel 16 kHz PCM WAV and returns
// the path of the written file.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrIO, inputPath)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", model.ErrIO, inputPath)
	}

	hasAudio, err := n.hasStream(ctx, inputPath, "a")
	if err != nil {
		return "", err
	}
	if !hasAudio {
		return "", fmt.Errorf("%w: %s", model.ErrUnsupportedMedia, inputPath)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(n.tmpDir, base+"_audio_16k.wav")

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", inputPath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	if outBytes, err := cmd.CombinedOutput(); err != nil {
		n.log.WithField("output", truncate(string(outBytes), 400)).Error("ffmpeg extraction failed")
		return "", fmt.Errorf("ffmpeg: %w", err)
	}

	outInfo, err := os.Stat(out)
	if err != nil || outInfo.Size() == 0 {
		return "", fmt.Errorf("%w: normalization produced no audio", model.ErrIO)
	}

	n.log.WithFields(logrus.Fields{
		"input":  inputPath,
		"output": out,
		"bytes":  outInfo.Size(),
	}).Info("audio normalized")

	return out, nil
}

// HasVideoStream reports whether the input carries at least one video stream.
func (n *Normalizer) HasVideoStream(ctx context.Context, path string) (bool, error) {
	return n.hasStream(ctx, path, "v")
}

// Probe returns duration, channel count, bitrate and codec of the best audio
// stream, for cost estimation before transcription is committed to.
func (n *Normalizer) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Channels  int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	info.BitRate, _ = strconv.Atoi(probe.Format.BitRate)
	for _, s := range probe.Streams {
		if s.CodecType == "audio" {
			info.Channels = s.Channels
			info.Codec = s.CodecName
			break
		}
	}
	if info.Codec == "" {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedMedia, path)
	}

	return info, nil
}

func (n *Normalizer) hasStream(ctx context.Context, path, kind string) (bool, error) {
	// ffprobe -select_streams a/v prints one codec name per matching stream.
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-select_streams", kind,
		"-show_entries", "stream=codec_name",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
