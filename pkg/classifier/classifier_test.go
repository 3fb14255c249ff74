package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/model"
	"github.com/clenoble/sovereign/pkg/types"
)

// stubBackend is a canned model.Backend that always returns the same text,
// letting tests drive the router/reasoning escalation without a real model.
type stubBackend struct {
	modelID string
	family  model.Family
	text    string
}

func (b *stubBackend) ModelID() string { return b.modelID }
func (b *stubBackend) Family() model.Family { return b.family }
func (b *stubBackend) Close() error { return nil }
func (b *stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0}, nil
}
func (b *stubBackend) Generate(ctx context.Context, prompt string, params model.SamplingParams) (<-chan model.StreamChunk, error) {
	ch := make(chan model.StreamChunk, 1)
	ch <- model.StreamChunk{Delta: b.text, Done: true}
	close(ch)
	return ch, nil
}

func registryWithStub(role model.Role, text string) *model.Registry {
	r := model.NewRegistry(nil)
	r.RegisterFactory(role, func(modelID string) (model.Backend, error) {
		return &stubBackend{modelID: modelID, family: model.FamilyChatML, text: text}, nil
	})
	return r
}

func TestClassifyEmptyTextIsUnknown(t *testing.T) {
	c := New(nil, "", "")
	intent := c.Classify(context.Background(), "   ", Context{})
	assert.Equal(t, types.ActionUnknown, intent.Action)
	assert.Zero(t, intent.Confidence)
}

func TestClassifyNoRegistryDegradesToUnknown(t *testing.T) {
	c := New(nil, "", "")
	intent := c.Classify(context.Background(), "tell me a joke", Context{})
	assert.Equal(t, types.ActionUnknown, intent.Action)
}

func TestFastPathCreateThread(t *testing.T) {
	c := New(nil, "", "")
	intent := c.Classify(context.Background(), `Create a thread called "Taxes"`, Context{})
	assert.Equal(t, types.ActionCreateThread, intent.Action)
	assert.Equal(t, heuristicConfidence, intent.Confidence)
	assert.Equal(t, "Taxes", intent.Slots["primary"])
}

func TestFastPathDeleteDocumentIsDistinctFromDeleteThread(t *testing.T) {
	c := New(nil, "", "")
	doc := c.Classify(context.Background(), "delete the document", Context{})
	assert.Equal(t, types.ActionDeleteDocument, doc.Action)

	thread := c.Classify(context.Background(), "delete the thread", Context{})
	assert.Equal(t, types.ActionDeleteThread, thread.Action)
}

func TestFastPathRestoreBeatsHistory(t *testing.T) {
	c := New(nil, "", "")
	intent := c.Classify(context.Background(), "restore the last version", Context{})
	assert.Equal(t, types.ActionRestore, intent.Action)
}

func TestFastPathTakesPriorityOverModelEscalation(t *testing.T) {
	registry := registryWithStub(model.RoleRouter, `{"action": "chat", "confidence": 0.99}`)
	c := New(registry, "router-model", "")
	intent := c.Classify(context.Background(), "search for the invoice", Context{})
	assert.Equal(t, types.ActionSearch, intent.Action)
	assert.Equal(t, heuristicConfidence, intent.Confidence)
}

func TestClassifyUsesRouterModelWhenFastPathMisses(t *testing.T) {
	registry := registryWithStub(model.RoleRouter, `{"action": "chat", "confidence": 0.95, "slots": {}}`)
	c := New(registry, "router-model", "")
	intent := c.Classify(context.Background(), "how's the weather looking today", Context{})
	assert.Equal(t, types.ActionChat, intent.Action)
	assert.Equal(t, 0.95, intent.Confidence)
}

func TestClassifyEscalatesBelowThreshold(t *testing.T) {
	router := model.NewRegistry(nil)
	router.RegisterFactory(model.RoleRouter, func(modelID string) (model.Backend, error) {
		return &stubBackend{modelID: modelID, family: model.FamilyChatML, text: `{"action": "chat", "confidence": 0.4}`}, nil
	})
	router.RegisterFactory(model.RoleReasoning, func(modelID string) (model.Backend, error) {
		return &stubBackend{modelID: modelID, family: model.FamilyChatML, text: `{"action": "summarize", "confidence": 0.9}`}, nil
	})
	c := New(router, "router-model", "reasoning-model")
	intent := c.Classify(context.Background(), "how's the weather looking today", Context{})
	assert.Equal(t, types.ActionSummarize, intent.Action)
	assert.Equal(t, 0.9, intent.Confidence)
}

func TestClassifyKeepsRouterResultWhenEscalationNotMoreConfident(t *testing.T) {
	router := model.NewRegistry(nil)
	router.RegisterFactory(model.RoleRouter, func(modelID string) (model.Backend, error) {
		return &stubBackend{modelID: modelID, family: model.FamilyChatML, text: `{"action": "chat", "confidence": 0.4}`}, nil
	})
	router.RegisterFactory(model.RoleReasoning, func(modelID string) (model.Backend, error) {
		return &stubBackend{modelID: modelID, family: model.FamilyChatML, text: `{"action": "summarize", "confidence": 0.3}`}, nil
	})
	c := New(router, "router-model", "reasoning-model")
	intent := c.Classify(context.Background(), "how's the weather looking today", Context{})
	assert.Equal(t, types.ActionChat, intent.Action)
}

func TestClassifyDegradesToUnknownOnRouterBackendError(t *testing.T) {
	registry := model.NewRegistry(nil)
	registry.RegisterFactory(model.RoleRouter, func(modelID string) (model.Backend, error) {
		return nil, assertError{}
	})
	c := New(registry, "router-model", "")
	intent := c.Classify(context.Background(), "how's the weather looking today", Context{})
	assert.Equal(t, types.ActionUnknown, intent.Action)
}

func TestExtractSlotsHandlesTwoQuotedValues(t *testing.T) {
	slots := extractSlots(`rename thread "Research" to "Archive"`)
	assert.Equal(t, "Research", slots["primary"])
	assert.Equal(t, "Archive", slots["secondary"])
}

func TestExtractJSONTrimsPreamble(t *testing.T) {
	body := extractJSON("Thinking about it...\n{\"action\": \"chat\", \"confidence\": 0.5}\nDone.")
	require.Contains(t, body, `"action"`)
	assert.Equal(t, `{"action": "chat", "confidence": 0.5}`, body)
}

func TestNormaliseActionAliases(t *testing.T) {
	assert.Equal(t, types.ActionCreateDocument, normaliseAction("new_document"))
	assert.Equal(t, types.ActionDeleteDocument, normaliseAction("delete_note"))
	assert.Equal(t, types.ActionRestore, normaliseAction("revert"))
	assert.Equal(t, types.ActionUnknown, normaliseAction("garbage"))
}

type assertError struct{}

func (assertError) Error() string { return "backend unavailable" }
