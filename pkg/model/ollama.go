package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ollamaBackend talks to a local Ollama daemon over plain HTTP. No
// Ollama SDK exists anywhere in this corpus; hector's own
// pkg/llms/ollama.go reaches for net/http directly for exactly this
// reason, and the embedding role follows the same path here.
type ollamaBackend struct {
	httpClient *http.Client
	baseURL    string
	modelID    string
	family     Family
}

// NewOllamaBackend builds a backend against a local Ollama daemon. It
// serves either the router or embedding role depending on which
// endpoint the caller invokes (Generate vs Embed); most local Ollama
// deployments expose one model per role.
func NewOllamaBackend(baseURL, modelID string) (Backend, error) {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if modelID == "" {
		return nil, &LoadError{ModelID: modelID, Cause: "missing model id", Err: fmt.Errorf("ollama: model id required")}
	}
	return &ollamaBackend{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		modelID:    modelID,
		family:     familyFromModelID(modelID),
	}, nil
}

func (b *ollamaBackend) ModelID() string { return b.modelID }
func (b *ollamaBackend) Family() Family  { return b.family }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

func (b *ollamaBackend) Generate(ctx context.Context, prompt string, params SamplingParams) (<-chan StreamChunk, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    b.modelID,
		Messages: []ollamaChatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens},
	})
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "marshal request", Err: err}
	}

	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "build request", Err: err}}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := b.httpClient.Do(req)
		if err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "ollama unreachable", Err: err}}
			return
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "read response", Err: err}}
			return
		}
		var parsed ollamaChatResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "decode response", Err: err}}
			return
		}
		if parsed.Error != "" {
			out <- StreamChunk{Err: &InferenceError{ModelID: b.modelID, Cause: "ollama error", Err: fmt.Errorf("%s", parsed.Error)}}
			return
		}
		out <- StreamChunk{Delta: parsed.Message.Content, Done: true}
	}()
	return out, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (b *ollamaBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: b.modelID, Input: text})
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "ollama unreachable", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "read response", Err: err}
	}
	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "decode response", Err: err}
	}
	if parsed.Error != "" {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "ollama error", Err: fmt.Errorf("%s", parsed.Error)}
	}
	if len(parsed.Embeddings) == 0 {
		return nil, &InferenceError{ModelID: b.modelID, Cause: "empty embedding response", Err: fmt.Errorf("ollama: no embeddings returned")}
	}
	return parsed.Embeddings[0], nil
}

func (b *ollamaBackend) Close() error { return nil }
