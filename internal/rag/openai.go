package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Generator is the generative answer capability: system + user prompt in,
// free text out.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIGenerator answers through the chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	chatModel   string
	maxTokens   int
	temperature float32
}

func NewOpenAIGenerator(client *openai.Client, chatModel string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      client,
		chatModel:   chatModel,
		maxTokens:   1024,
		temperature: 0.3,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500) {
			return "", model.Transient(err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
