// Package agent implements the Chat Agent Loop of spec.md §4.4: up to K
// rounds of render/generate/parse/execute, halting to surface an
// ActionProposal the moment a write tool call appears. Grounded on
// kadirpekel/hector's pkg/agent/llmagent.Flow — an outer loop that
// continues until a turn produces no further tool calls — narrowed to
// this core's plane/level-gated dispatch instead of hector's generic
// approval-decision extraction.
package agent

import (
	"context"
	"fmt"

	"github.com/clenoble/sovereign/pkg/events"
	"github.com/clenoble/sovereign/pkg/gate"
	"github.com/clenoble/sovereign/pkg/model"
	"github.com/clenoble/sovereign/pkg/prompt"
	"github.com/clenoble/sovereign/pkg/tool"
	"github.com/clenoble/sovereign/pkg/trust"
	"github.com/clenoble/sovereign/pkg/types"
)

// maxRounds is K in §4.4: "Cap at K = 5 iterations."
const maxRounds = 5

// State is the agent loop's state machine position, per SPEC_FULL.md's
// design note: {Idle, Generating, ExecutingReadOnly, AwaitingApproval,
// Finalizing}. It is exposed for observability only; control flow does
// not switch on it directly.
type State string

const (
	StateIdle             State = "idle"
	StateGenerating       State = "generating"
	StateExecutingReadOnly State = "executing_read_only"
	StateAwaitingApproval State = "awaiting_approval"
	StateFinalizing       State = "finalizing"
)

// Context mirrors the classifier's Context: the active workspace the
// loop renders into its system/user turns.
type Context struct {
	ActiveDocumentID string
	ActiveThreadID   string
}

// Reply is what Chat returns to its caller.
type Reply struct {
	Text    string
	State   State
	Pending *types.PendingApproval
}

// Loop runs the agent loop contract of §4.4.
type Loop struct {
	registry    *model.Registry
	routerModel string
	formatter   *prompt.Formatter
	tools       *tool.Registry
	gate        *gate.Gate
	emitter     *events.Emitter
	family      model.Family
	state       State
}

// New builds a chat agent loop. family selects which prompt template the
// formatter renders (ChatML/Mistral/Llama3); it is a property of the
// model currently occupying the router role, not a loop-level choice.
func New(registry *model.Registry, routerModel string, formatter *prompt.Formatter, tools *tool.Registry, g *gate.Gate, emitter *events.Emitter, family model.Family) *Loop {
	return &Loop{registry: registry, routerModel: routerModel, formatter: formatter, tools: tools, gate: g, emitter: emitter, family: family}
}

// Chat runs the contract: render -> generate -> parse -> execute,
// looping until a purely-text turn, a write proposal, or the iteration
// cap. See spec.md §4.4 algorithm steps 1-6.
func (l *Loop) Chat(ctx context.Context, userMessage string, wctx Context) (Reply, error) {
	transcript := []prompt.Message{{Role: prompt.RoleUser, Content: userMessage}}
	defs := l.tools.Definitions()

	l.setState(StateGenerating)
	for round := 0; round < maxRounds; round++ {
		rendered := l.formatter.Render(l.family, transcript, defs)

		text, err := l.registry.GenerateText(ctx, model.RoleRouter, l.routerModel, rendered, model.SamplingParams{Temperature: 0.2, MaxTokens: 1024})
		if err != nil {
			l.setState(StateIdle)
			return Reply{Text: "I couldn't reach the language model just now. Please try again.", State: StateIdle}, nil
		}

		parsed := prompt.Parse(text)
		if len(parsed.ToolCalls) == 0 {
			l.setState(StateFinalizing)
			l.emitter.Emit(events.KindChatMessage, events.ChatMessage{Text: parsed.ReplyText})
			l.setState(StateIdle)
			return Reply{Text: parsed.ReplyText, State: StateIdle}, nil
		}

		executedAny := false
		for _, call := range parsed.ToolCalls {
			def, ok := l.lookupDefinition(defs, call.Name)
			if !ok {
				transcript = append(transcript, prompt.Message{Role: prompt.RoleToolResult, ToolName: call.Name, Content: fmt.Sprintf("tool %s failed: not found", call.Name)})
				continue
			}

			if def.Level == types.LevelObserve {
				l.setState(StateExecutingReadOnly)
				result, err := l.tools.Dispatch(ctx, types.ToolCall{Name: call.Name, Arguments: call.Arguments, Level: def.Level, Plane: def.Plane})
				if err != nil {
					transcript = append(transcript, prompt.Message{Role: prompt.RoleToolResult, ToolName: call.Name, Content: fmt.Sprintf("tool %s failed: %v", call.Name, err)})
					continue
				}
				transcript = append(transcript, prompt.Message{Role: prompt.RoleToolResult, ToolName: call.Name, Content: result.ForModel})
				executedAny = true
				continue
			}

			// Write call: halt and surface an ActionProposal (§4.4 step 4).
			l.setState(StateAwaitingApproval)
			proposalDoc := wctx.ActiveDocumentID
			proposal := types.ActionProposal{
				Action:      actionForTool(call.Name),
				Description: parsed.ReplyText,
				Plane:       def.Plane,
				Level:       def.Level,
				WorkflowKey: workflowKeyFor(call.Name, def),
				ToolID:      call.Name,
				DocumentID:  proposalDoc,
				ThreadID:    wctx.ActiveThreadID,
				Args:        call.Arguments,
				Provenance:  def.Provenance,
			}
			decision, err := l.gate.Dispatch(ctx, proposal)
			if err != nil {
				return Reply{}, err
			}
			switch decision.Kind {
			case gate.DecisionProposed:
				pending, _ := l.gate.Pending()
				return Reply{Text: parsed.ReplyText, State: StateAwaitingApproval, Pending: &pending}, nil
			case gate.DecisionExecuted:
				transcript = append(transcript, prompt.Message{Role: prompt.RoleToolResult, ToolName: call.Name, Content: decision.Result.ForModel})
				executedAny = true
			case gate.DecisionRejected:
				transcript = append(transcript, prompt.Message{Role: prompt.RoleToolResult, ToolName: call.Name, Content: fmt.Sprintf("tool %s failed: %s", call.Name, decision.Reason)})
			}
		}

		if !executedAny {
			// Every call in this turn failed or was a write that
			// didn't execute; nothing new to feed the model, finalize
			// with whatever reply text it produced.
			l.setState(StateFinalizing)
			l.setState(StateIdle)
			return Reply{Text: parsed.ReplyText, State: StateIdle}, nil
		}
		l.setState(StateGenerating)
	}

	// Iteration cap reached (§8 boundary behaviour): emit final text
	// without pending tool calls.
	l.setState(StateFinalizing)
	l.setState(StateIdle)
	return Reply{Text: "I've gathered what I can; let me know if you'd like me to continue.", State: StateIdle}, nil
}

// CurrentState returns the loop's last recorded state-machine position.
func (l *Loop) CurrentState() State { return l.state }

func (l *Loop) setState(s State) {
	// BubbleState events (emitted by the gate and by Dispatch) already
	// carry the user-facing signal; this tracks the finer-grained
	// loop-internal position for CurrentState/diagnostics.
	l.state = s
}

func (l *Loop) lookupDefinition(defs []tool.Definition, name string) (tool.Definition, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return tool.Definition{}, false
}

func actionForTool(toolName string) types.ActionVariant {
	switch toolName {
	case "create_document":
		return types.ActionCreateDocument
	case "create_thread":
		return types.ActionCreateThread
	case "rename_thread":
		return types.ActionRenameThread
	case "move_document":
		return types.ActionMoveDocument
	case "delete_thread":
		return types.ActionDeleteThread
	case "delete_document":
		return types.ActionDeleteDocument
	case "summarize_external":
		return types.ActionSummarize
	default:
		return types.ActionChat
	}
}

func workflowKeyFor(toolName string, def tool.Definition) string {
	return trust.WorkflowKey(actionForTool(toolName), toolName, def.Provenance)
}
