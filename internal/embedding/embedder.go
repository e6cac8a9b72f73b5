package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/retry"
)

const (
	// DefaultBatchSize is how many texts go into one embeddings call.
	DefaultBatchSize = 100

	// maxTextChars hard-truncates any single input before submission.
	maxTextChars = 8000

	// batchDelay is the fixed pause between successive batches, as
	// backpressure against the provider's rate limits.
	batchDelay = 200 * time.Millisecond

	// itemDelay spaces out per-item fallback submissions.
	itemDelay = 500 * time.Millisecond
)

// api is the slice of the OpenAI client the embedder needs.
type api interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// ItemError records a single input that could not be embedded.
type ItemError struct {
	Index int
	Err   error
}

// Embedder converts chunk text and query strings into fixed-dimension
// vectors, batched with retry and a per-item fallback so one bad item never
// blocks unrelated chunks.
type Embedder struct {
	client    api
	emodel    openai.EmbeddingModel
	dimension int
	batchSize int
	policy    retry.Policy
	log       *logrus.Entry

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func New(client api, emodel string, dimension int, log *logrus.Entry) *Embedder {
	return &Embedder{
		client:    client,
		emodel:    openai.EmbeddingModel(emodel),
		dimension: dimension,
		batchSize: DefaultBatchSize,
		policy:    retry.Default(),
		log:       log,
		sleep:     time.Sleep,
	}
}

// Dimension is the fixed output width, matching the vector index config.
func (e *Embedder) Dimension() int { return e.dimension }

// EmbedQuery embeds a single question string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", model.ErrValidation)
	}
	var vecs [][]float32
	err := e.policy.Do(ctx, func() error {
		var callErr error
		vecs, callErr = e.callBatch(ctx, []string{text})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds every text, returning a vector slice aligned with the
// input. Entries that were empty after normalization or failed even the
// per-item fallback carry a nil vector and a recorded ItemError.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, []ItemError) {
	vectors := make([][]float32, len(texts))
	var itemErrs []ItemError

	// Filter invalid items up front; they are logged, never submitted.
	var valid []int
	normalized := make([]string, len(texts))
	for i, t := range texts {
		n := normalizeText(t)
		normalized[i] = n
		if n == "" {
			e.log.WithField("index", i).Warn("skipping empty chunk text")
			itemErrs = append(itemErrs, ItemError{Index: i, Err: fmt.Errorf("%w: empty text", model.ErrValidation)})
			continue
		}
		valid = append(valid, i)
	}

	for batchStart := 0; batchStart < len(valid); batchStart += e.batchSize {
		if batchStart > 0 {
			e.sleep(batchDelay)
		}

		end := batchStart + e.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		indices := valid[batchStart:end]

		batch := make([]string, len(indices))
		for j, idx := range indices {
			batch[j] = normalized[idx]
		}

		var vecs [][]float32
		err := e.policy.Do(ctx, func() error {
			var callErr error
			vecs, callErr = e.callBatch(ctx, batch)
			return callErr
		})
		if err == nil {
			for j, idx := range indices {
				vectors[idx] = vecs[j]
			}
			continue
		}

		e.log.WithFields(logrus.Fields{
			"batch_start": batchStart,
			"batch_size":  len(batch),
			"error":       err.Error(),
		}).Warn("embedding batch exhausted retries, degrading to per-item fallback")

		for j, idx := range indices {
			if j > 0 {
				e.sleep(itemDelay)
			}
			single, itemErr := e.callBatch(ctx, []string{batch[j]})
			if itemErr != nil {
				itemErrs = append(itemErrs, ItemError{Index: idx, Err: itemErr})
				continue
			}
			vectors[idx] = single[0]
		}
	}

	return vectors, itemErrs
}

func (e *Embedder) callBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.emodel,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// classify marks rate limits and upstream outages as transient so the shared
// retry policy picks them up.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return model.Transient(err)
		}
		return err
	}
	// Network-level failures have no status code; treat as transient.
	return model.Transient(err)
}

// normalizeText trims, collapses internal whitespace and truncates to the
// provider-safe ceiling. The cut point backs up to a rune boundary so the
// truncated text stays valid UTF-8.
func normalizeText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxTextChars {
		cut := maxTextChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
