package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

func TestValidateRejectsBadOptions(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"tiny chunk size", Options{ChunkSize: 50, Overlap: 10}},
		{"negative overlap", Options{ChunkSize: 500, Overlap: -1}},
		{"overlap equals size", Options{ChunkSize: 500, Overlap: 500}},
		{"overlap exceeds size", Options{ChunkSize: 500, Overlap: 600}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.opts.Validate(); !errors.Is(err, model.ErrValidation) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}
}

func TestAdaptiveScalesWithLength(t *testing.T) {
	base := DefaultOptions()

	if got := Adaptive(1500, base); got.ChunkSize != 500 || got.Overlap != 100 {
		t.Errorf("short input: got %+v, want 500/100", got)
	}
	if got := Adaptive(5000, base); got != base {
		t.Errorf("medium input: got %+v, want %+v", got, base)
	}
	if got := Adaptive(50000, base); got.ChunkSize != 2000 || got.Overlap != 400 {
		t.Errorf("long input: got %+v, want 2000/400", got)
	}
}

func TestSplitProducesTwoOverlappingChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 188; i++ {
		sb.WriteString(fmt.Sprintf("word%03d ", i))
	}
	text := strings.TrimSpace(sb.String())
	if len(text) < 1400 || len(text) > 1600 {
		t.Fatalf("fixture length %d, want ~1500", len(text))
	}

	chunks, err := Split(text, Options{ChunkSize: 1000, Overlap: 200})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}

	overlap := commonOverlap(chunks[0], chunks[1])
	if overlap < 150 || overlap > 200 {
		t.Errorf("overlap = %d chars, want ~200", overlap)
	}
}

func TestSplitKeepsChunksWithinSize(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon zeta eta theta. ", 100))
	opts := Options{ChunkSize: 400, Overlap: 80}

	chunks, err := Split(text, opts)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > opts.ChunkSize+opts.Overlap {
			t.Errorf("chunk %d length %d exceeds %d", i, len(c), opts.ChunkSize+opts.Overlap)
		}
	}
}

func TestSplitFallsBackToCharacterCuts(t *testing.T) {
	// No separators at all: one unbroken run of letters.
	text := strings.Repeat("x", 1200)
	chunks, err := Split(text, Options{ChunkSize: 500, Overlap: 100})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected character-cut chunks, got %d", len(chunks))
	}
	joined := strings.Join(chunks, "")
	if !strings.HasPrefix(joined, "xxxx") {
		t.Errorf("unexpected chunk content")
	}
}

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("   \n ", DefaultOptions())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want 0", len(chunks))
	}
}

func TestBuildStartsAreMonotonic(t *testing.T) {
	var sb strings.Builder
	var segments []model.Segment
	for i := 0; i < 60; i++ {
		seg := model.Segment{
			Start:      float64(i * 5),
			End:        float64(i*5 + 5),
			Text:       fmt.Sprintf("segment %03d talks about one more topic in the lecture ", i),
			Confidence: 0.9,
		}
		sb.WriteString(seg.Text)
		segments = append(segments, seg)
	}
	text := strings.TrimSpace(sb.String())

	chunks, err := Build(text, segments, Options{ChunkSize: 400, Overlap: 80})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Start > c.End {
			t.Errorf("chunk %d: start %.2f > end %.2f", i, c.Start, c.End)
		}
		if i > 0 && c.Start < chunks[i-1].Start {
			t.Errorf("chunk %d: start %.2f decreased from %.2f", i, c.Start, chunks[i-1].Start)
		}
		if c.WordCount == 0 || c.Length != len(c.Text) {
			t.Errorf("chunk %d: bad length/word bookkeeping", i)
		}
	}
}

func TestBuildRepeatedPassageDoesNotResolveBackwards(t *testing.T) {
	refrain := "every node in the left subtree is smaller and every node in the right subtree is larger than the root\n\n"
	bridge := "the lecturer now works one full example on the board inserting seven keys into an empty tree in random order\n\n"
	segments := []model.Segment{
		{Start: 0, End: 30, Text: refrain, Confidence: 0.9},
		{Start: 30, End: 90, Text: bridge, Confidence: 0.8},
		{Start: 90, End: 120, Text: refrain, Confidence: 0.9},
	}
	text := refrain + bridge + refrain

	chunks, err := Build(text, segments, Options{ChunkSize: 130, Overlap: 0})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start < chunks[i-1].Start {
			t.Errorf("chunk %d: start %.2f decreased from %.2f", i, chunks[i].Start, chunks[i-1].Start)
		}
	}
	// The final chunk repeats the first verbatim; it must map to the later
	// occurrence, not back to the opening of the lecture.
	last := chunks[len(chunks)-1]
	if last.Start != 90 || last.End != 120 {
		t.Errorf("repeated chunk placed at [%.2f, %.2f], want [90, 120]", last.Start, last.End)
	}
}

func TestSplitCharacterCutsKeepValidUTF8(t *testing.T) {
	text := strings.Repeat("é", 300)

	chunks, err := Split(text, Options{ChunkSize: 101, Overlap: 0})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
}

// commonOverlap returns the length of the longest suffix of a that is a
// prefix of b.
func commonOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}
