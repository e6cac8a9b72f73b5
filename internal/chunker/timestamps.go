package chunker

import (
	"strings"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// TimeRange is the reconciled position of one chunk on the segment timeline.
type TimeRange struct {
	Start      float64
	End        float64
	Confidence float64
}

// fuzzyDiscount is applied to the confidence of fuzzy-located chunks to
// signal reduced reliability.
const fuzzyDiscount = 0.7

// fuzzyProbeWords is how many leading words the fuzzy pass searches for.
const fuzzyProbeWords = 5

// Reconcile maps a chunk of transcript text back onto the time-coded
// segments. It first tries an exact substring locate of the trimmed chunk;
// failing that, a fuzzy locate on the chunk's first words; failing both, a
// zeroed range so one unlocatable chunk never aborts the whole batch.
func Reconcile(chunkText, fullText string, segments []model.Segment) TimeRange {
	r, _ := reconcileFrom(chunkText, fullText, 0, segments)
	return r
}

// reconcileFrom is Reconcile with the locate constrained to start at or after
// the byte offset from. It also returns the located position (-1 when the
// chunk could not be placed) so callers can keep consecutive chunks moving
// forward through the transcript even when passages repeat verbatim.
func reconcileFrom(chunkText, fullText string, from int, segments []model.Segment) (TimeRange, int) {
	needle := strings.TrimSpace(chunkText)
	if needle == "" || len(segments) == 0 {
		return TimeRange{}, -1
	}
	if from < 0 || from > len(fullText) {
		from = 0
	}

	if pos := strings.Index(fullText[from:], needle); pos >= 0 {
		pos += from
		if r, ok := rangeOverSegments(pos, pos+len(needle), segments); ok {
			return r, pos
		}
	}

	words := strings.Fields(needle)
	if len(words) > fuzzyProbeWords {
		words = words[:fuzzyProbeWords]
	}
	probe := strings.Join(words, " ")
	if pos := strings.Index(fullText[from:], probe); pos >= 0 {
		pos += from
		if seg, ok := segmentAt(pos, segments); ok {
			return TimeRange{
				Start:      seg.Start,
				End:        seg.End,
				Confidence: seg.Confidence * fuzzyDiscount,
			}, pos
		}
	}

	return TimeRange{}, -1
}

// rangeOverSegments walks the segment list accumulating character offsets and
// returns the start of the first and the end of the last segment overlapping
// [from, to), with confidence averaged over the overlap.
func rangeOverSegments(from, to int, segments []model.Segment) (TimeRange, bool) {
	var (
		r       TimeRange
		found   bool
		confSum float64
		n       int
		offset  int
	)

	for _, seg := range segments {
		segFrom := offset
		segTo := offset + len(seg.Text)
		offset = segTo

		if segTo <= from || segFrom >= to {
			continue
		}
		if !found {
			r.Start = seg.Start
			found = true
		}
		r.End = seg.End
		confSum += seg.Confidence
		n++
	}

	if !found {
		return TimeRange{}, false
	}
	r.Confidence = confSum / float64(n)
	return r, true
}

// segmentAt returns the single segment whose character span contains pos.
func segmentAt(pos int, segments []model.Segment) (model.Segment, bool) {
	offset := 0
	for _, seg := range segments {
		next := offset + len(seg.Text)
		if pos >= offset && pos < next {
			return seg, true
		}
		offset = next
	}
	return model.Segment{}, false
}
