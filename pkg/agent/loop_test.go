package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/config"
	"github.com/clenoble/sovereign/pkg/events"
	"github.com/clenoble/sovereign/pkg/gate"
	"github.com/clenoble/sovereign/pkg/graphstore"
	"github.com/clenoble/sovereign/pkg/model"
	"github.com/clenoble/sovereign/pkg/prompt"
	"github.com/clenoble/sovereign/pkg/sessionlog"
	"github.com/clenoble/sovereign/pkg/tool"
	"github.com/clenoble/sovereign/pkg/trust"
	"github.com/clenoble/sovereign/pkg/types"
)

// scriptedBackend returns one canned response per call, repeating the
// last entry once the script is exhausted.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (b *scriptedBackend) ModelID() string       { return "scripted" }
func (b *scriptedBackend) Family() model.Family   { return model.FamilyChatML }
func (b *scriptedBackend) Close() error           { return nil }
func (b *scriptedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0}, nil
}
func (b *scriptedBackend) Generate(ctx context.Context, prompt string, params model.SamplingParams) (<-chan model.StreamChunk, error) {
	b.mu.Lock()
	idx := b.calls
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	text := b.responses[idx]
	b.calls++
	b.mu.Unlock()

	ch := make(chan model.StreamChunk, 1)
	ch <- model.StreamChunk{Delta: text, Done: true}
	close(ch)
	return ch, nil
}

func newTestLoop(t *testing.T, responses []string) *Loop {
	t.Helper()
	store := graphstore.NewMemory()
	registry := tool.NewRegistry()
	require.NoError(t, tool.RegisterBuiltins(registry, store, func(s string) string { return s }))

	ledger, err := trust.Open(filepath.Join(t.TempDir(), "trust.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	log, _, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.jsonl"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	emitter := events.NewEmitter(32)
	g := gate.New(config.ActionGateConfig{AutoApprovalThreshold: 10}, registry, ledger, log, emitter)

	modelRegistry := model.NewRegistry(nil)
	modelRegistry.RegisterFactory(model.RoleRouter, func(modelID string) (model.Backend, error) {
		return &scriptedBackend{responses: responses}, nil
	})

	return New(modelRegistry, "router-model", prompt.NewFormatter(), registry, g, emitter, model.FamilyChatML)
}

func TestChatFinalizesOnPureTextTurn(t *testing.T) {
	l := newTestLoop(t, []string{"Here is the summary you asked for."})
	reply, err := l.Chat(context.Background(), "summarize my notes", Context{})
	require.NoError(t, err)
	assert.Equal(t, "Here is the summary you asked for.", reply.Text)
	assert.Equal(t, StateIdle, reply.State)
	assert.Nil(t, reply.Pending)
}

func TestChatExecutesObserveToolThenFinalizes(t *testing.T) {
	l := newTestLoop(t, []string{
		`Let me check your contacts.<tool_call>{"name": "list_contacts", "arguments": {}}</tool_call>`,
		"You have three contacts.",
	})
	reply, err := l.Chat(context.Background(), "who are my contacts", Context{})
	require.NoError(t, err)
	assert.Equal(t, "You have three contacts.", reply.Text)
	assert.Equal(t, StateIdle, reply.State)
}

func TestChatHaltsOnWriteProposal(t *testing.T) {
	l := newTestLoop(t, []string{
		`I'll create that thread for you.<tool_call>{"name": "create_thread", "arguments": {"name": "Taxes"}}</tool_call>`,
	})
	reply, err := l.Chat(context.Background(), `create a thread called "Taxes"`, Context{})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingApproval, reply.State)
	require.NotNil(t, reply.Pending)
	assert.Equal(t, "create_thread", reply.Pending.Proposal.ToolID)
}

func TestChatHaltsOnDeleteDocumentProposalNotThread(t *testing.T) {
	l := newTestLoop(t, []string{
		`Deleting that document now.<tool_call>{"name": "delete_document", "arguments": {"document_id": "doc-1"}}</tool_call>`,
	})
	reply, err := l.Chat(context.Background(), "delete the document", Context{})
	require.NoError(t, err)
	require.NotNil(t, reply.Pending)
	assert.Equal(t, "delete_document", reply.Pending.Proposal.ToolID)
	assert.Equal(t, types.ActionDeleteDocument, reply.Pending.Proposal.Action)
	assert.NotEqual(t, types.ActionDeleteThread, reply.Pending.Proposal.Action)
}

func TestChatStopsAtIterationCap(t *testing.T) {
	l := newTestLoop(t, []string{
		`<tool_call>{"name": "list_contacts", "arguments": {}}</tool_call>`,
	})
	reply, err := l.Chat(context.Background(), "keep checking contacts", Context{})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, reply.State)
	assert.Equal(t, "I've gathered what I can; let me know if you'd like me to continue.", reply.Text)
}

func TestChatFinalizesWhenToolNotFound(t *testing.T) {
	l := newTestLoop(t, []string{
		`<tool_call>{"name": "nonexistent_tool", "arguments": {}}</tool_call>`,
	})
	reply, err := l.Chat(context.Background(), "do the impossible thing", Context{})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, reply.State)
}
