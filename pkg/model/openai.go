package model

import (
	"context"
	"fmt"

	openailib "github.com/sashabaranov/go-openai"
)

// openaiBackend serves the router tier over any OpenAI-compatible chat
// completions endpoint, the same client Jint8888-Pocket-Omega's
// internal/llm/openai wraps for its router model.
type openaiBackend struct {
	client  *openailib.Client
	modelID string
	family  Family
}

// NewOpenAIBackend builds a router-tier backend. baseURL may be empty to
// use the default OpenAI endpoint, or set to a local OpenAI-compatible
// server (vLLM, LM Studio, llama.cpp server) for an on-device router.
func NewOpenAIBackend(apiKey, baseURL, modelID string) (Backend, error) {
	if modelID == "" {
		return nil, &LoadError{ModelID: modelID, Cause: "missing model id", Err: fmt.Errorf("openai: model id required")}
	}
	cfg := openailib.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openailib.NewClientWithConfig(cfg)
	return &openaiBackend{client: client, modelID: modelID, family: familyFromModelID(modelID)}, nil
}

func (b *openaiBackend) ModelID() string { return b.modelID }
func (b *openaiBackend) Family() Family  { return b.family }

func (b *openaiBackend) Generate(ctx context.Context, prompt string, params SamplingParams) (<-chan StreamChunk, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	req := openailib.ChatCompletionRequest{
		Model: b.modelID,
		Messages: []openailib.ChatCompletionMessage{
			{Role: openailib.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(params.Temperature),
	}

	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		resp, err := b.client.CreateChatCompletion(ctx, req)
		if err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "openai request failed", Err: err}}
			return
		}
		if len(resp.Choices) == 0 {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "empty response", Err: fmt.Errorf("openai: no choices returned")}}
			return
		}
		out <- StreamChunk{Delta: resp.Choices[0].Message.Content, Done: true}
	}()
	return out, nil
}

func (b *openaiBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openailib.EmbeddingRequest{
		Input: []string{text},
		Model: openailib.AdaEmbeddingV2,
	}
	resp, err := b.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "embed request failed", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "empty embedding response", Err: fmt.Errorf("openai: no data returned")}
	}
	return resp.Data[0].Embedding, nil
}

func (b *openaiBackend) Close() error { return nil }
