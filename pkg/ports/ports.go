// Package ports defines the abstract external-collaborator contracts the
// core depends on (SPEC_FULL.md §6). Concrete implementations — the real
// graph store, key vault, skill runtime, channel adapters, and canvas
// controller — live outside the core; this package only names the
// shapes the core calls through.
package ports

import (
	"context"
	"time"

	"github.com/clenoble/sovereign/pkg/types"
)

// Document is the graph-store-owned entity the core mutates through
// GraphStore. Fields beyond title/content/thread are implementation
// defined and opaque to the core.
type Document struct {
	ID        string
	ThreadID  string
	Title     string
	Content   string
	DeletedAt *time.Time
	HeadCommit string
}

// Thread groups documents.
type Thread struct {
	ID          string
	Name        string
	Description string
	DeletedAt   *time.Time
}

// Contact and Message are read-only entities surfaced by the graph store
// and channel adapters respectively.
type Contact struct {
	ID   string
	Name string
}

type Message struct {
	ID             string
	ConversationID string
	From           string
	Body           string
	Timestamp      time.Time
}

// DocumentDraft is the input to CreateDocument.
type DocumentDraft struct {
	ThreadID string
	Title    string
	Content  string
}

// DocumentPatch is the input to UpdateDocument; zero-value fields are
// left unchanged by convention (callers set only what they intend to
// change).
type DocumentPatch struct {
	ID      string
	Title   *string
	Content *string
}

// DocumentFilter and ThreadFilter narrow list operations. An empty
// filter matches everything non-deleted.
type DocumentFilter struct {
	ThreadID       string
	IncludeDeleted bool
}

type ThreadFilter struct {
	IncludeDeleted bool
}

// GraphStore is the port onto the user's encrypted document/thread graph.
// Per §6.1, per-key operations must be linearisable and reads must
// reflect all prior writes by the same actor.
type GraphStore interface {
	CreateDocument(ctx context.Context, draft DocumentDraft) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	UpdateDocument(ctx context.Context, patch DocumentPatch) (Document, error)
	SoftDeleteDocument(ctx context.Context, id string) error
	RestoreDocument(ctx context.Context, id string) (Document, error)
	PurgeDocument(ctx context.Context, id string) error

	CreateThread(ctx context.Context, name, description string) (Thread, error)
	RenameThread(ctx context.Context, id, newName string) (Thread, error)
	SoftDeleteThread(ctx context.Context, id string) error
	MoveDocumentToThread(ctx context.Context, docID, threadID string) error

	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	ListThreads(ctx context.Context, filter ThreadFilter) ([]Thread, error)
	ListContacts(ctx context.Context) ([]Contact, error)
	SearchMessages(ctx context.Context, query string) ([]Message, error)
	SearchDocuments(ctx context.Context, query string) ([]Document, error)

	CreateCommit(ctx context.Context, docID, message string, snapshot Document) (types.Commit, error)
	ListCommits(ctx context.Context, docID string) ([]types.Commit, error)
	GetCommit(ctx context.Context, id string) (types.Commit, error)
}

// KeyVault is the port onto device key material. All key material
// returned from it is expected to be zeroised by the caller once used;
// the core never logs key bytes.
type KeyVault interface {
	UnwrapDocumentKey(ctx context.Context, docID string) ([]byte, error)
	RotateDocumentKey(ctx context.Context, docID string) error
	DeriveSubkey(ctx context.Context, domainLabel string) ([]byte, error)
	SplitMasterKey(threshold, total int) ([][]byte, error)
	CombineMasterKey(shards [][]byte) ([]byte, error)
}

// SkillDescriptor declares a WASM-runtime skill's capabilities.
type SkillDescriptor struct {
	ID           string
	Name         string
	Capabilities []string
	Level        types.ActionLevel
}

// SkillRuntime is the port onto the WASM skill host. Any invocation above
// Observe is treated as a write tool by the core and routed through the
// Action Gate (§6.3).
type SkillRuntime interface {
	ListSkills(ctx context.Context) ([]SkillDescriptor, error)
	Invoke(ctx context.Context, skillID, action string, args map[string]any) (types.ToolResult, error)
}

// ConversationFilter narrows ChannelAdapter.ListConversations.
type ConversationFilter struct {
	Since time.Time
}

// ChannelAdapter is the port onto a communication channel (email,
// messaging). Content from a ChannelAdapter always enters the core on
// the Data plane (§6.4).
type ChannelAdapter interface {
	ListConversations(ctx context.Context, filter ConversationFilter) ([]string, error)
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// CanvasController receives emitted navigation calls only; the core
// never reads from it (§6.5).
type CanvasController interface {
	NavigateTo(ctx context.Context, docID string)
	Highlight(ctx context.Context, docID string)
	ZoomToThread(ctx context.Context, threadID string)
}
