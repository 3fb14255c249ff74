// Package model implements the Model Backend Registry of spec.md §4.2: it
// owns zero, one, or two loaded LLMs, exposes blocking generate/embed, and
// enforces idle-unload. Concrete backends mirror kadirpekel/hector's
// pkg/llms providers: github.com/anthropics/anthropic-sdk-go for the
// reasoning tier, github.com/sashabaranov/go-openai for an
// OpenAI-compatible router tier, and a hand-rolled net/http client for a
// local Ollama backend — the same shape hector's llms/ollama.go uses
// because no Ollama SDK exists in this corpus.
package model

import (
	"context"
	"fmt"
)

// Role is one of the three model slots the registry can hold.
type Role string

const (
	RoleRouter    Role = "router"
	RoleReasoning Role = "reasoning"
	RoleEmbedding Role = "embedding"
)

// Family is the prompt-template family a loaded model belongs to; the
// Prompt Formatter consults this to pick turn markers (spec.md §4.3).
type Family string

const (
	FamilyChatML  Family = "chatml"
	FamilyMistral Family = "mistral"
	FamilyLlama3  Family = "llama3"
	FamilyUnknown Family = "unknown"
)

// SamplingParams bounds a single generate() call.
type SamplingParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// StreamChunk is one incremental token delta from a streaming generate.
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

// GenResult is the final outcome of a generate() call once streaming
// completes (or immediately, for backends that don't stream).
type GenResult struct {
	Text       string
	TokensUsed int
}

// Backend is the minimal surface every concrete model provider
// implements. It mirrors hector's llms.LLMProvider but narrowed to what
// the orchestrator core actually needs: blocking/streaming generate plus
// optional embed.
type Backend interface {
	ModelID() string
	Family() Family
	Generate(ctx context.Context, prompt string, params SamplingParams) (<-chan StreamChunk, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// LoadError identifies the model id and cause of a failed load, per
// spec.md §4.2 ("a typed error identifying the model id and cause").
type LoadError struct {
	ModelID string
	Cause   string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model: load %s failed (%s): %v", e.ModelID, e.Cause, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError wraps a generation-time failure (OOM, context overflow,
// decode error). The agent loop treats this the same as a classifier
// Unknown: abort politely, never panic.
type InferenceError struct {
	ModelID string
	Cause   string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model: generate on %s failed (%s): %v", e.ModelID, e.Cause, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// familyFromModelID guesses a prompt family from a model identifier or
// filename, the way hector's registry tags providers by name pattern.
func familyFromModelID(id string) Family {
	switch {
	case contains(id, "mistral"):
		return FamilyMistral
	case contains(id, "llama-3"), contains(id, "llama3"):
		return FamilyLlama3
	case contains(id, "gpt"), contains(id, "claude"), contains(id, "chatml"):
		return FamilyChatML
	default:
		return FamilyUnknown
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := haystack[i+j], needle[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
