// Package types defines the entities the orchestrator core owns: intents,
// action proposals, tool calls and results, trust records, session log
// entries, and document commits. See SPEC_FULL.md §3.
package types

import "time"

// ActionVariant enumerates the closed set of actions the core can
// classify, propose, or execute.
type ActionVariant string

const (
	ActionSearch         ActionVariant = "search"
	ActionOpen           ActionVariant = "open"
	ActionCreateDocument ActionVariant = "create_document"
	ActionDeleteDocument ActionVariant = "delete_document"
	ActionCreateThread   ActionVariant = "create_thread"
	ActionRenameThread   ActionVariant = "rename_thread"
	ActionDeleteThread   ActionVariant = "delete_thread"
	ActionMoveDocument   ActionVariant = "move_document"
	ActionListContacts   ActionVariant = "list_contacts"
	ActionViewMessages   ActionVariant = "view_messages"
	ActionSummarize      ActionVariant = "summarize"
	ActionChat           ActionVariant = "chat"
	ActionHistory        ActionVariant = "history"
	ActionRestore        ActionVariant = "restore"
	ActionUnknown        ActionVariant = "unknown"
)

// ActionLevel is the totally ordered 5-tier irreversibility enum.
// Order matters: comparisons (>=, <) are valid and meaningful.
type ActionLevel int

const (
	LevelObserve ActionLevel = iota
	LevelAnnotate
	LevelModify
	LevelTransmit
	LevelDestruct
)

func (l ActionLevel) String() string {
	switch l {
	case LevelObserve:
		return "observe"
	case LevelAnnotate:
		return "annotate"
	case LevelModify:
		return "modify"
	case LevelTransmit:
		return "transmit"
	case LevelDestruct:
		return "destruct"
	default:
		return "unknown"
	}
}

// Plane separates content with action capability (Control) from content
// that may only ever be rendered or summarized (Data). See invariant 1.
type Plane string

const (
	PlaneControl Plane = "control"
	PlaneData    Plane = "data"
)

// Provenance marks whether content originates inside the user's trust
// boundary or outside it.
type Provenance string

const (
	ProvenanceOwned    Provenance = "owned"
	ProvenanceExternal Provenance = "external"
)

// Intent is the classifier's output: a typed action guess with confidence
// and recognised slots. Intent is never persisted (see lifecycle in §3).
type Intent struct {
	Action     ActionVariant
	Confidence float64
	Slots      map[string]string
}

// UnknownIntent is the classifier's fail-safe zero value.
func UnknownIntent() Intent {
	return Intent{Action: ActionUnknown, Confidence: 0, Slots: map[string]string{}}
}

// ActionProposal is what the gate receives: an action plus everything
// needed to decide and, if approved, execute it.
type ActionProposal struct {
	Action      ActionVariant
	Description string
	Plane       Plane
	Level       ActionLevel
	WorkflowKey string
	ToolID      string
	DocumentID  string
	ThreadID    string
	Args        map[string]any
	Provenance  Provenance
}

// ToolCall is a request emitted by the agent loop after parsing model
// output.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Level     ActionLevel
	Plane     Plane
}

// ToolResult is what a tool invocation returns: text for the model, text
// for the user, and a provenance tag that the intent classifier and gate
// use to enforce the plane seal.
type ToolResult struct {
	ToolName     string
	ForModel     string
	ForUser      string
	Provenance   Provenance
	Success      bool
	ErrorMessage string
}

// TrustRecord is the per-workflow approval/rejection counter. A single
// rejection resets Approvals to zero (invariant 7).
type TrustRecord struct {
	WorkflowKey    string
	Approvals      int
	Rejections     int
	LastDecisionAt time.Time
}

// SessionEntryKind enumerates the append-only log's record kinds.
type SessionEntryKind string

const (
	EntryUserInput           SessionEntryKind = "user_input"
	EntryClassifiedIntent    SessionEntryKind = "classified_intent"
	EntryToolCall            SessionEntryKind = "tool_call"
	EntryToolResult          SessionEntryKind = "tool_result"
	EntryProposed            SessionEntryKind = "proposed"
	EntryApproved            SessionEntryKind = "approved"
	EntryRejected            SessionEntryKind = "rejected"
	EntryExecuted            SessionEntryKind = "executed"
	EntryExecutionError      SessionEntryKind = "execution_error"
	EntrySuperseded          SessionEntryKind = "superseded"
	EntrySuggestionShown     SessionEntryKind = "suggestion_shown"
	EntrySuggestionFeedback  SessionEntryKind = "suggestion_feedback"
)

// SessionEntry is one immutable record in the session log.
type SessionEntry struct {
	Timestamp time.Time
	Kind      SessionEntryKind
	Payload   []byte
	PrevHash  []byte // populated only when the log is encrypted
}

// BubbleState mirrors the GUI-facing processing indicator.
type BubbleState string

const (
	BubbleIdle              BubbleState = "idle"
	BubbleProcessingOwned   BubbleState = "processing_owned"
	BubbleProcessingExtern  BubbleState = "processing_external"
	BubbleProposing         BubbleState = "proposing"
	BubbleExecuting         BubbleState = "executing"
	BubbleSuggesting        BubbleState = "suggesting"
)

// PendingApproval is the single outstanding proposal awaiting a user
// decision (invariant 4).
type PendingApproval struct {
	Proposal ActionProposal
	Token    string
	RaisedAt time.Time
}

// Commit is one immutable snapshot in a document's version chain.
type Commit struct {
	ID           string
	DocumentID   string
	ParentCommit string // empty for the root commit
	Author       string
	Timestamp    time.Time
	Message      string
	Title        string
	Content      string
}

// ShortID returns a short, human-displayable prefix of the commit ID, the
// way restore messages reference it ("Restored from {c.short_id}").
func (c Commit) ShortID() string {
	if len(c.ID) <= 8 {
		return c.ID
	}
	return c.ID[:8]
}

// GateRejectionCode is the machine-readable reason code attached to every
// ActionRejected event the gate emits, including a user's rejection
// (RejectApprovalDenied) and a superseded proposal (RejectSuperseded).
// See SPEC_FULL.md "Supplemented features" #1.
type GateRejectionCode string

const (
	RejectPlaneViolation     GateRejectionCode = "plane_violation"
	RejectApprovalDenied     GateRejectionCode = "approval_denied"
	RejectApprovalTimeout    GateRejectionCode = "approval_timeout"
	RejectTrustInsufficient  GateRejectionCode = "trust_insufficient"
	RejectValidationFailed   GateRejectionCode = "validation_failed"
	RejectSuperseded         GateRejectionCode = "superseded"
)
