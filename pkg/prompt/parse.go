package prompt

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/clenoble/sovereign/pkg/types"
)

// toolCallPattern matches the fenced <tool_call>...</tool_call> envelope
// the formatter's few-shot exemplar teaches (§4.3: "a distinguished
// XML-like tag wrapping a JSON object"), whatever its body holds, so a
// malformed body is still stripped from the reply text. The envelope
// syntax is owned entirely by this file; no other package parses it.
var toolCallPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

type rawToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ParsedOutput is what Parse extracts from one assistant turn.
type ParsedOutput struct {
	ReplyText string
	ToolCalls []types.ToolCall
}

// Parse extracts tool calls from assistant output. The parser is strict
// per §4.3: any structural error (malformed JSON inside a matched
// envelope) is dropped silently from the tool-call list — it does not
// abort parsing the rest of the message — and the assistant's
// surrounding prose, with every envelope stripped, is preserved as reply
// text regardless of how many tool calls were found.
func Parse(output string) ParsedOutput {
	matches := toolCallPattern.FindAllStringSubmatchIndex(output, -1)
	if len(matches) == 0 {
		return ParsedOutput{ReplyText: strings.TrimSpace(output)}
	}

	var calls []types.ToolCall
	var replyBuilder strings.Builder
	last := 0
	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		jsonStart, jsonEnd := m[2], m[3]
		replyBuilder.WriteString(output[last:fullStart])
		last = fullEnd

		var raw rawToolCall
		if err := json.Unmarshal([]byte(output[jsonStart:jsonEnd]), &raw); err != nil {
			continue // structural error: drop this call, keep parsing
		}
		if raw.Name == "" {
			continue
		}
		calls = append(calls, types.ToolCall{
			ID:        uuid.NewString(),
			Name:      raw.Name,
			Arguments: raw.Arguments,
		})
	}
	replyBuilder.WriteString(output[last:])

	return ParsedOutput{
		ReplyText: strings.TrimSpace(replyBuilder.String()),
		ToolCalls: calls,
	}
}
