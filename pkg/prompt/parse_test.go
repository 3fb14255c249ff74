package prompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/prompt"
)

func TestParsePlainTextHasNoToolCalls(t *testing.T) {
	out := prompt.Parse("Sure, here's a summary of your notes.")
	assert.Empty(t, out.ToolCalls)
	assert.Equal(t, "Sure, here's a summary of your notes.", out.ReplyText)
}

func TestParseExtractsToolCallAndStripsEnvelope(t *testing.T) {
	raw := `Let me check that for you.
<tool_call>{"name": "search_documents", "arguments": {"query": "taxes"}}</tool_call>`
	out := prompt.Parse(raw)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "search_documents", out.ToolCalls[0].Name)
	assert.Equal(t, "taxes", out.ToolCalls[0].Arguments["query"])
	assert.NotContains(t, out.ReplyText, "<tool_call>")
	assert.Equal(t, "Let me check that for you.", out.ReplyText)
}

func TestParseDropsMalformedCallButKeepsProse(t *testing.T) {
	raw := `Here goes.
<tool_call>{not valid json</tool_call>
Still here.`
	out := prompt.Parse(raw)
	assert.Empty(t, out.ToolCalls)
	assert.Contains(t, out.ReplyText, "Here goes.")
	assert.Contains(t, out.ReplyText, "Still here.")
	assert.NotContains(t, out.ReplyText, "<tool_call>")
}

func TestParseHandlesMultipleToolCalls(t *testing.T) {
	raw := `<tool_call>{"name": "list_threads", "arguments": {}}</tool_call>` +
		`<tool_call>{"name": "list_contacts", "arguments": {}}</tool_call>`
	out := prompt.Parse(raw)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "list_threads", out.ToolCalls[0].Name)
	assert.Equal(t, "list_contacts", out.ToolCalls[1].Name)
}

func TestParseDropsCallMissingName(t *testing.T) {
	raw := `<tool_call>{"arguments": {"query": "x"}}</tool_call>`
	out := prompt.Parse(raw)
	assert.Empty(t, out.ToolCalls)
}
