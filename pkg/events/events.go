// Package events implements the Orchestrator Event Emitter of spec.md
// §6.6: a typed event stream the GUI (or any consumer) drains. Events
// are plain Go structs pushed onto a buffered channel, the same
// streaming shape kadirpekel/hector's pkg/agent.Event uses rather than a
// generic pub/sub bus; github.com/google/uuid (a direct hector
// dependency) stamps event ids.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/clenoble/sovereign/pkg/types"
)

// Kind enumerates the closed set of event types the core emits.
type Kind string

const (
	KindBubbleStateChanged   Kind = "bubble_state_changed"
	KindChatToken            Kind = "chat_token"
	KindChatMessage          Kind = "chat_message"
	KindIntentClassified     Kind = "intent_classified"
	KindActionProposed       Kind = "action_proposed"
	KindActionExecuted       Kind = "action_executed"
	KindActionRejected       Kind = "action_rejected"
	KindInjectionDetected    Kind = "injection_detected"
	KindVersionHistory       Kind = "version_history"
	KindDocumentOpened       Kind = "document_opened"
	KindDocumentClosed       Kind = "document_closed"
	KindSuggestionShown      Kind = "suggestion_shown"
	KindSuggestionFeedback   Kind = "suggestion_feedback"
)

// Event is the envelope every emitted event shares; Payload carries the
// kind-specific body.
type Event struct {
	ID        string
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// Payload shapes, one per Kind.
type (
	BubbleStateChanged struct{ State types.BubbleState }
	ChatToken          struct{ Delta string }
	ChatMessage        struct{ Text string }
	IntentClassified   struct{ Intent types.Intent }
	ActionProposed     struct{ Proposal types.ActionProposal }
	ActionExecuted     struct {
		Action types.ActionVariant
		Result types.ToolResult
	}
	ActionRejected struct {
		Action types.ActionVariant
		Reason string
		Code   types.GateRejectionCode
	}
	InjectionDetected struct {
		Span   string
		Origin types.Provenance
	}
	VersionHistory struct {
		DocumentID string
		Commits    []types.Commit
	}
	DocumentOpened     struct{ DocumentID string }
	DocumentClosed     struct{ DocumentID string }
	SuggestionShown    struct{ Suggestion string }
	SuggestionFeedback struct {
		Suggestion string
		Accepted   bool
	}
)

// Emitter is a buffered, non-blocking fan-out point for orchestrator
// events. A full buffer drops the oldest event rather than blocking the
// cooperative event loop, matching §5's back-pressure posture of never
// letting a slow consumer stall the core.
type Emitter struct {
	ch chan Event
}

// NewEmitter creates an emitter with the given channel buffer depth.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Events returns the consumer-facing read channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit pushes kind/payload as a new event, stamping id and timestamp.
// If the buffer is full, the oldest queued event is dropped to make
// room — the GUI is expected to resync state (e.g. BubbleState) rather
// than rely on every historical event surviving back-pressure.
func (e *Emitter) Emit(kind Kind, payload any) {
	ev := Event{ID: uuid.NewString(), Kind: kind, Timestamp: time.Now(), Payload: payload}
	select {
	case e.ch <- ev:
	default:
		select {
		case <-e.ch:
		default:
		}
		select {
		case e.ch <- ev:
		default:
		}
	}
}

// Close releases the channel. Safe to call once; callers must stop
// calling Emit before Close.
func (e *Emitter) Close() {
	close(e.ch)
}
