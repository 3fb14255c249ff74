package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/clenoble/sovereign/pkg/agent"
	"github.com/clenoble/sovereign/pkg/events"
	"github.com/clenoble/sovereign/pkg/gate"
	"github.com/clenoble/sovereign/pkg/trust"
	"github.com/clenoble/sovereign/pkg/types"
)

// dispatchDirectIntent handles every classified Action other than Chat:
// a direct command the classifier was confident enough about to skip the
// generation round entirely (§4.4's distinction between a recognised
// command and free-form chat).
func (o *Orchestrator) dispatchDirectIntent(ctx context.Context, intent types.Intent, wctx Context) (agent.Reply, error) {
	switch intent.Action {
	case types.ActionSearch:
		return o.directSearch(ctx, intent)
	case types.ActionOpen:
		return o.directOpen(ctx, intent)
	case types.ActionListContacts:
		return o.directToolCall(ctx, "list_contacts", nil)
	case types.ActionViewMessages:
		return o.directToolCall(ctx, "search_messages", map[string]any{"query": intent.Slots["query"]})
	case types.ActionCreateDocument:
		return o.directWrite(ctx, intent, "create_document", map[string]any{
			"thread_id": intent.Slots["thread_id"],
			"title":     intent.Slots["title"],
		}, wctx)
	case types.ActionCreateThread:
		return o.directWrite(ctx, intent, "create_thread", map[string]any{
			"name": intent.Slots["name"],
		}, wctx)
	case types.ActionRenameThread:
		return o.directWrite(ctx, intent, "rename_thread", map[string]any{
			"thread_id": intent.Slots["thread_id"],
			"new_name":  intent.Slots["new_name"],
		}, wctx)
	case types.ActionMoveDocument:
		return o.directWrite(ctx, intent, "move_document", map[string]any{
			"document_id": intent.Slots["document_id"],
			"thread_id":   intent.Slots["thread_id"],
		}, wctx)
	case types.ActionDeleteThread:
		return o.directWrite(ctx, intent, "delete_thread", map[string]any{
			"thread_id": intent.Slots["thread_id"],
		}, wctx)
	case types.ActionDeleteDocument:
		return o.directWrite(ctx, intent, "delete_document", map[string]any{
			"document_id": intent.Slots["document_id"],
		}, wctx)
	case types.ActionSummarize:
		return o.directToolCall(ctx, "summarize_external", map[string]any{"text": intent.Slots["text"]})
	case types.ActionHistory:
		return o.directHistory(ctx, wctx)
	case types.ActionRestore:
		return o.directRestore(ctx, intent, wctx)
	default:
		return agent.Reply{Text: "I'm not sure how to do that yet.", State: agent.StateIdle}, nil
	}
}

// directToolCall runs an Observe-level tool straight through the
// registry, bypassing the gate entirely (read-only calls never become an
// ActionProposal to begin with — see the agent loop's equivalent path).
func (o *Orchestrator) directToolCall(ctx context.Context, toolName string, args map[string]any) (agent.Reply, error) {
	def, ok := o.lookupToolDefinition(toolName)
	if !ok {
		return agent.Reply{Text: fmt.Sprintf("tool %s is not registered", toolName), State: agent.StateIdle}, nil
	}
	result, err := o.tools.Dispatch(ctx, types.ToolCall{Name: toolName, Arguments: args, Level: def.Level, Plane: def.Plane})
	if err != nil {
		return agent.Reply{Text: "That didn't work: " + err.Error(), State: agent.StateIdle}, nil
	}
	return agent.Reply{Text: result.ForUser, State: agent.StateIdle}, nil
}

// directWrite builds an ActionProposal for toolName and runs it through
// the gate, exactly as the agent loop does for a model-originated write
// call — a direct command still only reaches execution through the
// gate's decision procedure (§4.6 invariant: sole path to a
// state-mutating tool invocation).
func (o *Orchestrator) directWrite(ctx context.Context, intent types.Intent, toolName string, args map[string]any, wctx Context) (agent.Reply, error) {
	def, ok := o.lookupToolDefinition(toolName)
	if !ok {
		return agent.Reply{Text: fmt.Sprintf("tool %s is not registered", toolName), State: agent.StateIdle}, nil
	}
	proposal := types.ActionProposal{
		Action:      intent.Action,
		Description: fmt.Sprintf("Direct command: %s", toolName),
		Plane:       def.Plane,
		Level:       def.Level,
		WorkflowKey: trust.WorkflowKey(intent.Action, toolName, def.Provenance),
		ToolID:      toolName,
		DocumentID:  wctx.ActiveDocumentID,
		ThreadID:    wctx.ActiveThreadID,
		Args:        args,
		Provenance:  def.Provenance,
	}
	decision, err := o.gate.Dispatch(ctx, proposal)
	if err != nil {
		return agent.Reply{}, err
	}
	return replyFromDecisionWithProposal(decision), nil
}

func replyFromDecisionWithProposal(d gate.Decision) agent.Reply {
	reply := replyFromDecision(d)
	if d.Kind == gate.DecisionProposed {
		reply.Text = "I'd like to confirm that action before proceeding."
	}
	return reply
}

func (o *Orchestrator) lookupToolDefinition(name string) (toolDefinitionResult, bool) {
	for _, d := range o.tools.Definitions() {
		if d.Name == name {
			return toolDefinitionResult{Level: d.Level, Plane: d.Plane, Provenance: d.Provenance}, true
		}
	}
	return toolDefinitionResult{}, false
}

type toolDefinitionResult struct {
	Level      types.ActionLevel
	Plane      types.Plane
	Provenance types.Provenance
}

func (o *Orchestrator) directSearch(ctx context.Context, intent types.Intent) (agent.Reply, error) {
	return o.directToolCall(ctx, "search_documents", map[string]any{"query": intent.Slots["query"]})
}

func (o *Orchestrator) directOpen(ctx context.Context, intent types.Intent) (agent.Reply, error) {
	docID := intent.Slots["document_id"]
	if docID == "" {
		return o.directToolCall(ctx, "search_documents", map[string]any{"query": intent.Slots["query"]})
	}
	reply, err := o.directToolCall(ctx, "get_document", map[string]any{"document_id": docID})
	if err == nil {
		o.emitter.Emit(events.KindDocumentOpened, events.DocumentOpened{DocumentID: docID})
	}
	return reply, err
}

// directHistory lists the active document's commit chain (§4.10's
// read-side operation, surfaced to the GUI as a VersionHistory event
// rather than plain chat text).
func (o *Orchestrator) directHistory(ctx context.Context, wctx Context) (agent.Reply, error) {
	if wctx.ActiveDocumentID == "" {
		return agent.Reply{Text: "Open a document first to see its history.", State: agent.StateIdle}, nil
	}
	commits, err := o.store.ListCommits(ctx, wctx.ActiveDocumentID)
	if err != nil {
		return agent.Reply{Text: "I couldn't load the version history.", State: agent.StateIdle}, nil
	}
	o.emitter.Emit(events.KindVersionHistory, events.VersionHistory{DocumentID: wctx.ActiveDocumentID, Commits: commits})
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, fmt.Sprintf("%s — %s (%s)", c.ShortID(), c.Message, c.Timestamp.Format("2006-01-02 15:04")))
	}
	return agent.Reply{Text: strings.Join(lines, "\n"), State: agent.StateIdle}, nil
}

// directRestore runs a version restore through the restore_version tool,
// gated exactly like any other Modify-level write (§4.6).
func (o *Orchestrator) directRestore(ctx context.Context, intent types.Intent, wctx Context) (agent.Reply, error) {
	if wctx.ActiveDocumentID == "" {
		return agent.Reply{Text: "Open a document first to restore a version.", State: agent.StateIdle}, nil
	}
	commitID := intent.Slots["commit_id"]
	if commitID == "" {
		return agent.Reply{Text: "Which version would you like to restore?", State: agent.StateIdle}, nil
	}
	return o.directWrite(ctx, intent, "restore_version", map[string]any{
		"document_id": wctx.ActiveDocumentID,
		"commit_id":   commitID,
	}, wctx)
}
