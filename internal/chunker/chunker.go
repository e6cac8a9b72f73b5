package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Options controls chunk sizing. Adjacent chunks share Overlap characters of
// trailing/leading context.
type Options struct {
	ChunkSize int
	Overlap   int
}

// DefaultOptions is the baseline 1000/200 split.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 200}
}

// Adaptive scales the configured options to the transcript length: short
// inputs get smaller chunks, long ones larger.
func Adaptive(textLen int, base Options) Options {
	switch {
	case textLen < 2000:
		return Options{ChunkSize: 500, Overlap: 100}
	case textLen > 20000:
		return Options{ChunkSize: 2000, Overlap: 400}
	default:
		return base
	}
}

func (o Options) Validate() error {
	if o.ChunkSize < 100 {
		return fmt.Errorf("%w: chunk size %d below minimum 100", model.ErrValidation, o.ChunkSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: negative overlap %d", model.ErrValidation, o.Overlap)
	}
	if o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", model.ErrValidation, o.Overlap, o.ChunkSize)
	}
	return nil
}

// separators are tried in priority order; the empty string means raw
// character cuts as the last resort.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

// Split breaks text into overlapping spans no longer than opts.ChunkSize.
func Split(text string, opts Options) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	pieces := splitBySeparators(text, separators, opts.ChunkSize)
	return mergeWithOverlap(pieces, opts), nil
}

// splitBySeparators recursively cuts text until every piece fits chunkSize,
// walking down the separator priority list and ending at character cuts.
func splitBySeparators(text string, seps []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}

	sep := seps[0]
	rest := seps[1:]

	if sep == "" {
		var out []string
		for len(text) > size {
			cut := runeCut(text, size)
			out = append(out, text[:cut])
			text = text[cut:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return splitBySeparators(text, rest, size)
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(p) <= size {
			out = append(out, p)
		} else {
			out = append(out, splitBySeparators(p, rest, size)...)
		}
	}
	return out
}

// mergeWithOverlap packs pieces into chunks of at most ChunkSize, seeding
// each new chunk with the word-aligned tail of the previous one.
func mergeWithOverlap(pieces []string, o Options) []string {
	var chunks []string
	var cur strings.Builder
	fresh := false // whether cur holds anything beyond carried overlap

	flush := func() string {
		chunk := strings.TrimSpace(cur.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
		fresh = false
		return chunk
	}

	for _, p := range pieces {
		if fresh && cur.Len()+len(p) > o.ChunkSize {
			chunk := flush()
			tail := overlapTail(chunk, o.Overlap)
			if tail != "" {
				cur.WriteString(tail)
				cur.WriteString(" ")
			}
		}
		cur.WriteString(p)
		fresh = true
	}
	if fresh {
		flush()
	}
	return chunks
}

// runeCut backs n up to the nearest rune boundary so a byte-indexed cut
// never splits a multibyte character. Returns n unchanged when no boundary
// exists above 0, which keeps the caller's loop advancing on malformed input.
func runeCut(s string, n int) int {
	for i := n; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return n
}

// overlapTail returns at most n trailing characters of s, advanced to the
// next word boundary so the overlap never starts mid-word.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}

// Build splits the transcript and reconciles every chunk against the segment
// timeline, producing chunk records ready to persist. Each chunk's locate
// starts after the previous chunk's position so repeated passages cannot
// resolve backwards and break start-time monotonicity.
func Build(text string, segments []model.Segment, opts Options) ([]model.Chunk, error) {
	texts, err := Split(text, opts)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.Chunk, 0, len(texts))
	searchFrom := 0
	for i, t := range texts {
		loc, pos := reconcileFrom(t, text, searchFrom, segments)
		if pos >= 0 {
			searchFrom = pos + 1
		}
		chunks = append(chunks, model.Chunk{
			Index:      i,
			Text:       t,
			Length:     len(t),
			WordCount:  len(strings.Fields(t)),
			Start:      loc.Start,
			End:        loc.End,
			Confidence: loc.Confidence,
		})
	}
	return chunks, nil
}
