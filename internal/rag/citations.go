package rag

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Window is one retrieved context chunk handed to the generator.
type Window struct {
	Index      int
	Text       string
	Start      float64
	End        float64
	Confidence float64
	Score      float64
}

// timestampRe matches the bracketed [MM:SS] and [HH:MM:SS] tokens the
// system prompt instructs the generator to emit.
var timestampRe = regexp.MustCompile(`\[(\d{1,3}):(\d{2})(?::(\d{2}))?\]`)

// dedupeWindowSeconds collapses citations closer than this into one.
const dedupeWindowSeconds = 5.0

// ExtractCitations parses bracketed time tokens out of the generated answer
// and attributes each to the context window whose time range contains it.
// Tokens outside every window are discarded. If the answer carries no
// parseable token at all, every window contributes one citation at its own
// start so the user is never left without navigable references.
func ExtractCitations(answer string, windows []Window) []model.Citation {
	var citations []model.Citation

	for _, m := range timestampRe.FindAllStringSubmatch(answer, -1) {
		seconds, ok := parseToken(m)
		if !ok {
			continue
		}
		w, found := windowContaining(seconds, windows)
		if !found {
			continue
		}
		citations = append(citations, model.Citation{
			ChunkIndex: w.Index,
			Timestamp:  seconds,
			Start:      w.Start,
			End:        w.End,
			Label:      m[0],
		})
	}

	if len(citations) == 0 {
		for _, w := range windows {
			citations = append(citations, model.Citation{
				ChunkIndex: w.Index,
				Timestamp:  w.Start,
				Start:      w.Start,
				End:        w.End,
				Label:      FormatTimestamp(w.Start),
			})
		}
	}

	return dedupe(citations)
}

// parseToken converts a regexp match into seconds. Two groups mean MM:SS,
// three mean HH:MM:SS.
func parseToken(m []string) (float64, bool) {
	first, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	second, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	if m[3] == "" {
		if second >= 60 {
			return 0, false
		}
		return float64(first*60 + second), true
	}
	third, err := strconv.Atoi(m[3])
	if err != nil || second >= 60 || third >= 60 {
		return 0, false
	}
	return float64(first*3600 + second*60 + third), true
}

func windowContaining(seconds float64, windows []Window) (Window, bool) {
	for _, w := range windows {
		if seconds >= w.Start && seconds <= w.End {
			return w, true
		}
	}
	return Window{}, false
}

// dedupe collapses citations within dedupeWindowSeconds of an earlier one;
// the first occurrence wins.
func dedupe(citations []model.Citation) []model.Citation {
	var out []model.Citation
	for _, c := range citations {
		dup := false
		for _, kept := range out {
			if abs(c.Timestamp-kept.Timestamp) <= dedupeWindowSeconds {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS past the hour.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("[%02d:%02d:%02d]", h, m, s)
	}
	return fmt.Sprintf("[%02d:%02d]", m, s)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
