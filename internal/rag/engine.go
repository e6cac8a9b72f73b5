package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/repository"
	"github.com/lokeshpanthangi/lecturechat/internal/retry"
	"github.com/lokeshpanthangi/lecturechat/internal/vectorstore"
)

const (
	primaryTopK     = 5
	primaryMinScore = 0.3

	fallbackTopK     = 3
	fallbackMinScore = 0.1

	// NoInformationAnswer is returned when even the relaxed query finds no
	// relevant content; generation is skipped entirely in that case.
	NoInformationAnswer = "I could not find any information about that in this recording."

	// generationFailureAnswer replaces raw service errors at query time.
	generationFailureAnswer = "I found relevant parts of the recording but could not generate an answer right now. The cited moments below may still help."
)

// QueryEmbedder embeds one question string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine answers questions against a recording's indexed chunks: embed the
// question, search with a threshold fallback, generate with citation
// instructions, then extract and validate the citations.
type Engine struct {
	store     repository.Store
	embedder  QueryEmbedder
	index     vectorstore.Index
	generator Generator
	policy    retry.Policy
	log       *logrus.Entry
}

func NewEngine(store repository.Store, embedder QueryEmbedder, index vectorstore.Index, generator Generator, log *logrus.Entry) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		index:     index,
		generator: generator,
		policy:    retry.Default(),
		log:       log,
	}
}

// Ask answers one question about a recording and persists the exchange.
func (e *Engine) Ask(ctx context.Context, recordingID uuid.UUID, question string) (*model.Exchange, error) {
	if _, err := e.store.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := e.search(ctx, vector, recordingID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		e.log.WithField("recording_id", recordingID).Info("no relevant content for question")
		return e.saveExchange(ctx, recordingID, question, NoInformationAnswer, nil, nil)
	}

	windows := make([]Window, 0, len(matches))
	sources := make([]model.SourceSnippet, 0, len(matches))
	for _, m := range matches {
		windows = append(windows, Window{
			Index: m.Metadata.ChunkIndex,
			Text:  m.Metadata.Snippet,
			Start: m.Metadata.Start,
			End:   m.Metadata.End,
			Score: m.Score,
		})
		sources = append(sources, model.SourceSnippet{
			ChunkIndex: m.Metadata.ChunkIndex,
			Text:       m.Metadata.Snippet,
			Start:      m.Metadata.Start,
			End:        m.Metadata.End,
			Score:      m.Score,
		})
	}

	systemPrompt, userPrompt := BuildAnswerPrompt(question, windows)

	var answer string
	err = e.policy.Do(ctx, func() error {
		var genErr error
		answer, genErr = e.generator.Generate(ctx, systemPrompt, userPrompt)
		return genErr
	})
	if err != nil {
		// Query-time failures degrade to a fixed message with the retrieved
		// context still cited, never a raw service error.
		e.log.WithFields(logrus.Fields{
			"recording_id": recordingID,
			"error":        err.Error(),
		}).Error("answer generation failed")
		answer = generationFailureAnswer
	}

	citations := ExtractCitations(answer, windows)
	return e.saveExchange(ctx, recordingID, question, answer, citations, sources)
}

// search runs the primary similarity query and, when it comes back empty,
// one relaxed retry before giving up.
func (e *Engine) search(ctx context.Context, vector []float32, recordingID uuid.UUID) ([]vectorstore.Match, error) {
	matches, err := e.index.Query(ctx, vector, vectorstore.QueryOptions{
		TopK:        primaryTopK,
		RecordingID: recordingID.String(),
		MinScore:    primaryMinScore,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}

	return e.index.Query(ctx, vector, vectorstore.QueryOptions{
		TopK:        fallbackTopK,
		RecordingID: recordingID.String(),
		MinScore:    fallbackMinScore,
	})
}

func (e *Engine) saveExchange(ctx context.Context, recordingID uuid.UUID, question, answer string, citations []model.Citation, sources []model.SourceSnippet) (*model.Exchange, error) {
	if citations == nil {
		citations = []model.Citation{}
	}
	if sources == nil {
		sources = []model.SourceSnippet{}
	}
	ex := &model.Exchange{
		ID:          uuid.New(),
		RecordingID: recordingID,
		Question:    question,
		Answer:      answer,
		Citations:   citations,
		Sources:     sources,
		CreatedAt:   time.Now(),
	}
	if err := e.store.CreateExchange(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}
