package rag

import (
	"fmt"
	"strings"
)

// BuildAnswerPrompt builds the system and user prompts for one question over
// the retrieved context windows.
func BuildAnswerPrompt(question string, windows []Window) (string, string) {
	systemPrompt := `You are a lecture assistant that answers questions using ONLY the transcript excerpts provided.
Rules:
- Do NOT invent information. Use only what the excerpts contain.
- Every factual claim MUST be followed by a bracketed time reference in [MM:SS] or [HH:MM:SS] format.
- Time references MUST come from the time windows of the excerpts you used.
- If the excerpts do not contain the answer, say so plainly.
- Answer concisely and directly.`

	var sb strings.Builder
	sb.WriteString("Transcript excerpts from the lecture:\n\n")
	for _, w := range windows {
		sb.WriteString(fmt.Sprintf("Excerpt %d (%s - %s, relevance %.2f):\n%s\n\n",
			w.Index,
			FormatTimestamp(w.Start),
			FormatTimestamp(w.End),
			w.Score,
			strings.TrimSpace(w.Text),
		))
	}
	sb.WriteString(fmt.Sprintf("Question: %s\n\nAnswer the question using only the excerpts above, citing time references like [12:34] for every claim.", question))

	return systemPrompt, sb.String()
}
