package model

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend serves the reasoning tier over the Anthropic Messages
// API, the same SDK goadesign-goa-ai's model/anthropic adapter wraps.
type anthropicBackend struct {
	client  sdk.Client
	modelID string
	family  Family
}

// NewAnthropicBackend builds a reasoning-tier backend from an API key and
// model identifier (e.g. "claude-3-5-sonnet-20241022").
func NewAnthropicBackend(apiKey, modelID string) (Backend, error) {
	if apiKey == "" {
		return nil, &LoadError{ModelID: modelID, Cause: "missing api key", Err: fmt.Errorf("anthropic: api key required")}
	}
	if modelID == "" {
		return nil, &LoadError{ModelID: modelID, Cause: "missing model id", Err: fmt.Errorf("anthropic: model id required")}
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &anthropicBackend{client: client, modelID: modelID, family: FamilyChatML}, nil
}

func (b *anthropicBackend) ModelID() string { return b.modelID }
func (b *anthropicBackend) Family() Family  { return b.family }

func (b *anthropicBackend) Generate(ctx context.Context, prompt string, params SamplingParams) (<-chan StreamChunk, error) {
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	reqParams := sdk.MessageNewParams{
		Model:     sdk.Model(b.modelID),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if params.Temperature > 0 {
		reqParams.Temperature = sdk.Float(params.Temperature)
	}

	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		msg, err := b.client.Messages.New(ctx, reqParams)
		if err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "anthropic request failed", Err: err}}
			return
		}
		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		out <- StreamChunk{Delta: text, Done: true}
	}()
	return out, nil
}

func (b *anthropicBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("model: anthropic backend does not support embed; use the embedding role's ollama backend")
}

func (b *anthropicBackend) Close() error { return nil }
