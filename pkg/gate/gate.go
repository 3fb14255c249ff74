// Package gate implements the Action Gate of spec.md §4.6: the single
// choke point between a proposed action and a state-mutating tool
// invocation. Grounded on kadirpekel/hector's pkg/agent/tool_approval.go
// shape (propose, await, resume) generalised to the five-tier action
// level and plane-separation rules this spec adds.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clenoble/sovereign/pkg/config"
	"github.com/clenoble/sovereign/pkg/events"
	"github.com/clenoble/sovereign/pkg/injection"
	"github.com/clenoble/sovereign/pkg/logger"
	"github.com/clenoble/sovereign/pkg/observability"
	"github.com/clenoble/sovereign/pkg/sessionlog"
	"github.com/clenoble/sovereign/pkg/tool"
	"github.com/clenoble/sovereign/pkg/trust"
	"github.com/clenoble/sovereign/pkg/types"
)

var tracer = observability.Tracer("sovereign/gate")

// DecisionKind is the outer tag of what dispatch returned.
type DecisionKind string

const (
	DecisionExecuted DecisionKind = "executed"
	DecisionProposed DecisionKind = "proposed"
	DecisionRejected DecisionKind = "rejected"
)

// Decision is the gate's verdict on one proposal.
type Decision struct {
	Kind     DecisionKind
	Result   types.ToolResult
	Handle   string // approval token, set when Kind == DecisionProposed
	Reason   string
	Code     types.GateRejectionCode
}

// GateError is the gate's typed error for conditions that are bugs
// rather than ordinary rejections (e.g. resuming an unknown handle).
type GateError struct {
	Action  string
	Message string
}

func (e *GateError) Error() string { return fmt.Sprintf("gate:%s: %s", e.Action, e.Message) }

// Gate is the sole path from an ActionProposal to tool execution.
type Gate struct {
	mu      sync.Mutex
	cfg     config.ActionGateConfig
	tools   *tool.Registry
	trust   *trust.Ledger
	log     *sessionlog.Log
	emitter *events.Emitter

	pending    *types.PendingApproval
	pendingCtx context.Context
}

// New builds a gate wired to its collaborators. log may be nil in tests
// that don't care about persistence.
func New(cfg config.ActionGateConfig, tools *tool.Registry, ledger *trust.Ledger, log *sessionlog.Log, emitter *events.Emitter) *Gate {
	return &Gate{cfg: cfg, tools: tools, trust: ledger, log: log, emitter: emitter}
}

// Dispatch runs the decision procedure of §4.6 against proposal.
func (g *Gate) Dispatch(ctx context.Context, proposal types.ActionProposal) (Decision, error) {
	ctx, span := tracer.Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.String("action", string(proposal.Action)),
		attribute.String("level", proposal.Level.String()),
		attribute.String("tool_id", proposal.ToolID),
	))
	defer span.End()

	// 1. Validate plane (invariant 1 / §4.6 step 1).
	if proposal.Plane == types.PlaneData {
		reason := "data plane cannot propose actions"
		g.logAndEmitReject(proposal, reason, types.RejectPlaneViolation)
		return Decision{Kind: DecisionRejected, Reason: reason, Code: types.RejectPlaneViolation}, nil
	}

	g.scanForInjection(proposal)

	switch {
	case proposal.Level == types.LevelObserve:
		return g.executeSilently(ctx, proposal, bubbleForProvenance(proposal.Provenance))
	case proposal.Level == types.LevelAnnotate:
		return g.executeSilently(ctx, proposal, types.BubbleExecuting)
	case proposal.Level == types.LevelModify:
		return g.dispatchModify(ctx, proposal)
	case proposal.Level == types.LevelTransmit:
		return g.propose(proposal)
	case proposal.Level == types.LevelDestruct:
		return g.dispatchDestruct(ctx, proposal)
	default:
		reason := fmt.Sprintf("unknown action level %v", proposal.Level)
		g.logAndEmitReject(proposal, reason, types.RejectValidationFailed)
		return Decision{Kind: DecisionRejected, Reason: reason, Code: types.RejectValidationFailed}, nil
	}
}

func bubbleForProvenance(p types.Provenance) types.BubbleState {
	if p == types.ProvenanceExternal {
		return types.BubbleProcessingExtern
	}
	return types.BubbleProcessingOwned
}

func (g *Gate) dispatchModify(ctx context.Context, proposal types.ActionProposal) (Decision, error) {
	record := g.trust.Lookup(proposal.WorkflowKey)
	if record.Approvals >= g.cfg.AutoApprovalThreshold && record.Rejections == 0 {
		decision, err := g.executeSilently(ctx, proposal, types.BubbleExecuting)
		if err != nil || decision.Kind != DecisionExecuted {
			return decision, err
		}
		if _, rerr := g.trust.Record(proposal.WorkflowKey, trust.Approved); rerr != nil {
			return decision, rerr
		}
		g.emitter.Emit(events.KindActionExecuted, events.ActionExecuted{Action: proposal.Action, Result: decision.Result})
		return decision, nil
	}
	return g.propose(proposal)
}

func (g *Gate) dispatchDestruct(ctx context.Context, proposal types.ActionProposal) (Decision, error) {
	// Transmit and Destruct never auto-approve regardless of history
	// (invariant 2, §4.6 step 2).
	return g.propose(proposal)
}

// executeSilently runs the proposal's tool immediately with no pending
// approval, for Observe/Annotate and for auto-approved Modify.
func (g *Gate) executeSilently(ctx context.Context, proposal types.ActionProposal, bubble types.BubbleState) (Decision, error) {
	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: bubble})
	result, err := g.invoke(ctx, proposal)
	g.logEntry(types.EntryExecuted, proposal)
	if err != nil {
		g.logEntry(types.EntryExecutionError, proposal)
		return Decision{Kind: DecisionExecuted, Result: result, Reason: err.Error()}, nil
	}
	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleIdle})
	return Decision{Kind: DecisionExecuted, Result: result}, nil
}

func (g *Gate) invoke(ctx context.Context, proposal types.ActionProposal) (types.ToolResult, error) {
	if g.tools == nil {
		return types.ToolResult{}, &GateError{Action: "invoke", Message: "no tool registry configured"}
	}
	call := types.ToolCall{Name: proposal.ToolID, Arguments: proposal.Args, Level: proposal.Level, Plane: proposal.Plane}
	return g.tools.Dispatch(ctx, call)
}

// propose creates a PendingApproval and surfaces it. Per invariant 4, at
// most one PendingApproval exists: a new proposal supersedes whatever was
// pending (benign-event queueing is the caller's concern — the
// orchestrator decides whether an incoming event is "explicit user input
// that does not match approval" or a benign background event). The
// superseded branch of that invariant is a real rejection, not a silent
// drop: it is trust-recorded, session-logged, and surfaced as an
// ActionRejected event exactly like a user-initiated reject.
func (g *Gate) propose(proposal types.ActionProposal) (Decision, error) {
	g.mu.Lock()
	superseded := g.pending
	token := fmt.Sprintf("pending-%d", time.Now().UnixNano())
	g.pending = &types.PendingApproval{Proposal: proposal, Token: token, RaisedAt: time.Now()}
	g.mu.Unlock()

	if superseded != nil {
		g.supersede(superseded.Proposal)
	}

	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleProposing})
	g.emitter.Emit(events.KindActionProposed, events.ActionProposed{Proposal: proposal})
	g.logEntry(types.EntryProposed, proposal)
	return Decision{Kind: DecisionProposed, Handle: token}, nil
}

// supersede rejects a pending proposal that a newer one has displaced
// before it was ever approved or rejected by the user (invariant 4).
func (g *Gate) supersede(proposal types.ActionProposal) {
	if _, err := g.trust.Record(proposal.WorkflowKey, trust.Rejected); err != nil {
		logger.Get().Warn("gate: failed to record superseded proposal", "workflow_key", proposal.WorkflowKey, "error", err)
	}
	g.logEntry(types.EntrySuperseded, proposal)
	g.emitter.Emit(events.KindActionRejected, events.ActionRejected{Action: proposal.Action, Reason: "superseded by a newer proposal", Code: types.RejectSuperseded})
}

// Pending returns the single outstanding approval, if any.
func (g *Gate) Pending() (types.PendingApproval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return types.PendingApproval{}, false
	}
	return *g.pending, true
}

// Approve resumes a pending proposal identified by token: executes it,
// records the trust approval, and clears the pending slot (§4.6 step 3).
func (g *Gate) Approve(ctx context.Context, token string) (Decision, error) {
	g.mu.Lock()
	if g.pending == nil || g.pending.Token != token {
		g.mu.Unlock()
		return Decision{}, &GateError{Action: "approve", Message: "no matching pending approval"}
	}
	proposal := g.pending.Proposal
	g.pending = nil
	g.mu.Unlock()

	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleExecuting})
	result, err := g.invoke(ctx, proposal)
	g.logEntry(types.EntryApproved, proposal)

	if proposal.Level == types.LevelDestruct {
		// Soft delete is already the tool's own semantics (it calls
		// SoftDeleteDocument/Thread); the gate's job here is just to
		// have gated the call, which it has by reaching Invoke only
		// now, post-approval.
	}

	if _, rerr := g.trust.Record(proposal.WorkflowKey, trust.Approved); rerr != nil {
		return Decision{}, rerr
	}
	g.logEntry(types.EntryExecuted, proposal)
	g.emitter.Emit(events.KindActionExecuted, events.ActionExecuted{Action: proposal.Action, Result: result})
	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleIdle})

	if err != nil {
		return Decision{Kind: DecisionExecuted, Result: result, Reason: err.Error()}, nil
	}
	return Decision{Kind: DecisionExecuted, Result: result}, nil
}

// Reject resumes a pending proposal by rejecting it: records the trust
// rejection (resetting approvals to zero, invariant 7) and clears the
// pending slot.
func (g *Gate) Reject(token, reason string) (Decision, error) {
	g.mu.Lock()
	if g.pending == nil || g.pending.Token != token {
		g.mu.Unlock()
		return Decision{}, &GateError{Action: "reject", Message: "no matching pending approval"}
	}
	proposal := g.pending.Proposal
	g.pending = nil
	g.mu.Unlock()

	if _, err := g.trust.Record(proposal.WorkflowKey, trust.Rejected); err != nil {
		return Decision{}, err
	}
	g.logEntry(types.EntryRejected, proposal)
	g.emitter.Emit(events.KindActionRejected, events.ActionRejected{Action: proposal.Action, Reason: reason, Code: types.RejectApprovalDenied})
	g.emitter.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleIdle})
	return Decision{Kind: DecisionRejected, Reason: reason, Code: types.RejectApprovalDenied}, nil
}

// scanForInjection runs the Injection Scanner over any free-text field
// originating from external content, per §4.6 step 4. The report is
// always surfaced, never used to block or silently alter proposal.
func (g *Gate) scanForInjection(proposal types.ActionProposal) {
	if proposal.Provenance != types.ProvenanceExternal || proposal.Description == "" {
		return
	}
	report := injection.Scan(proposal.Description, proposal.Provenance)
	if !report.Suspicious {
		return
	}
	for _, span := range report.MatchedSpans {
		g.emitter.Emit(events.KindInjectionDetected, events.InjectionDetected{Span: span.Text, Origin: proposal.Provenance})
	}
}

func (g *Gate) logAndEmitReject(proposal types.ActionProposal, reason string, code types.GateRejectionCode) {
	g.logEntry(types.EntryRejected, proposal)
	g.emitter.Emit(events.KindActionRejected, events.ActionRejected{Action: proposal.Action, Reason: reason, Code: code})
}

func (g *Gate) logEntry(kind types.SessionEntryKind, proposal types.ActionProposal) {
	if g.log == nil {
		return
	}
	payload, err := json.Marshal(proposal)
	if err != nil {
		return
	}
	_ = g.log.Append(kind, payload)
}
