package tool

import (
	"context"
	"fmt"

	"github.com/clenoble/sovereign/pkg/ports"
	"github.com/clenoble/sovereign/pkg/types"
)

// Write tools never decide whether they may run — the Action Gate makes
// that decision before Dispatch is ever reached. Invoke implementations
// here assume they have already been authorised.

type createDocumentArgs struct {
	ThreadID string `mapstructure:"thread_id"`
	Title    string `mapstructure:"title"`
	Content  string `mapstructure:"content"`
}

type createDocumentTool struct{ store ports.GraphStore }

func NewCreateDocumentTool(store ports.GraphStore) Tool { return &createDocumentTool{store: store} }

func (t *createDocumentTool) Definition() Definition {
	return Definition{
		Name:        "create_document",
		Description: "Create a new document in a thread.",
		Level:       types.LevelModify,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(createDocumentArgs{}),
		Args:        &createDocumentArgs{},
	}
}

func (t *createDocumentTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args createDocumentArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	doc, err := t.store.CreateDocument(ctx, ports.DocumentDraft{ThreadID: args.ThreadID, Title: args.Title, Content: args.Content})
	if err != nil {
		return types.ToolResult{ToolName: "create_document", Success: false, ErrorMessage: err.Error()}, nil
	}
	if _, err := t.store.CreateCommit(ctx, doc.ID, "Initial version", doc); err != nil {
		return types.ToolResult{ToolName: "create_document", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Created document %q (%s)", doc.Title, doc.ID)
	return types.ToolResult{ToolName: "create_document", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type createThreadArgs struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

type createThreadTool struct{ store ports.GraphStore }

func NewCreateThreadTool(store ports.GraphStore) Tool { return &createThreadTool{store: store} }

func (t *createThreadTool) Definition() Definition {
	return Definition{
		Name:        "create_thread",
		Description: "Create a new thread (project).",
		Level:       types.LevelModify,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(createThreadArgs{}),
		Args:        &createThreadArgs{},
	}
}

func (t *createThreadTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args createThreadArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	th, err := t.store.CreateThread(ctx, args.Name, args.Description)
	if err != nil {
		return types.ToolResult{ToolName: "create_thread", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Created thread %q (%s)", th.Name, th.ID)
	return types.ToolResult{ToolName: "create_thread", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type renameThreadArgs struct {
	ThreadID string `mapstructure:"thread_id"`
	NewName  string `mapstructure:"new_name"`
}

type renameThreadTool struct{ store ports.GraphStore }

func NewRenameThreadTool(store ports.GraphStore) Tool { return &renameThreadTool{store: store} }

func (t *renameThreadTool) Definition() Definition {
	return Definition{
		Name:        "rename_thread",
		Description: "Rename an existing thread.",
		Level:       types.LevelModify,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(renameThreadArgs{}),
		Args:        &renameThreadArgs{},
	}
}

func (t *renameThreadTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args renameThreadArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	th, err := t.store.RenameThread(ctx, args.ThreadID, args.NewName)
	if err != nil {
		return types.ToolResult{ToolName: "rename_thread", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Renamed thread to %q", th.Name)
	return types.ToolResult{ToolName: "rename_thread", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type moveDocumentArgs struct {
	DocumentID string `mapstructure:"document_id"`
	ThreadID   string `mapstructure:"thread_id"`
}

type moveDocumentTool struct{ store ports.GraphStore }

func NewMoveDocumentTool(store ports.GraphStore) Tool { return &moveDocumentTool{store: store} }

func (t *moveDocumentTool) Definition() Definition {
	return Definition{
		Name:        "move_document",
		Description: "Move a document to a different thread.",
		Level:       types.LevelModify,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(moveDocumentArgs{}),
		Args:        &moveDocumentArgs{},
	}
}

func (t *moveDocumentTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args moveDocumentArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	if err := t.store.MoveDocumentToThread(ctx, args.DocumentID, args.ThreadID); err != nil {
		return types.ToolResult{ToolName: "move_document", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Moved document %s to thread %s", args.DocumentID, args.ThreadID)
	return types.ToolResult{ToolName: "move_document", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

// ---- delete_document / delete_thread (Destruct) ----------------------

type deleteDocumentArgs struct {
	DocumentID string `mapstructure:"document_id"`
}

type deleteDocumentTool struct{ store ports.GraphStore }

func NewDeleteDocumentTool(store ports.GraphStore) Tool { return &deleteDocumentTool{store: store} }

func (t *deleteDocumentTool) Definition() Definition {
	return Definition{
		Name:        "delete_document",
		Description: "Soft-delete a document (30-day retention before purge).",
		Level:       types.LevelDestruct,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(deleteDocumentArgs{}),
		Args:        &deleteDocumentArgs{},
	}
}

func (t *deleteDocumentTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args deleteDocumentArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	if err := t.store.SoftDeleteDocument(ctx, args.DocumentID); err != nil {
		return types.ToolResult{ToolName: "delete_document", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Deleted document %s (recoverable for 30 days)", args.DocumentID)
	return types.ToolResult{ToolName: "delete_document", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type deleteThreadArgs struct {
	ThreadID string `mapstructure:"thread_id"`
}

type deleteThreadTool struct{ store ports.GraphStore }

func NewDeleteThreadTool(store ports.GraphStore) Tool { return &deleteThreadTool{store: store} }

func (t *deleteThreadTool) Definition() Definition {
	return Definition{
		Name:        "delete_thread",
		Description: "Soft-delete a thread (30-day retention before purge).",
		Level:       types.LevelDestruct,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(deleteThreadArgs{}),
		Args:        &deleteThreadArgs{},
	}
}

func (t *deleteThreadTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args deleteThreadArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	if err := t.store.SoftDeleteThread(ctx, args.ThreadID); err != nil {
		return types.ToolResult{ToolName: "delete_thread", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Deleted thread %s (recoverable for 30 days)", args.ThreadID)
	return types.ToolResult{ToolName: "delete_thread", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}

// ---- summarize_external (Data plane content-processing tool) --------

type summarizeExternalArgs struct {
	Text string `mapstructure:"text"`
}

type summarizeExternalTool struct{ summarize func(string) string }

// NewSummarizeExternalTool wraps a summarisation function (typically a
// call into the data-plane model, §4.2/§9 "model solitude") as a Data
// plane tool. Its result is an ordinary types.ToolResult tagged
// ProvenanceExternal; there is no separate Summary result type, and
// nothing in the result marks it as Data plane beyond the tool's own
// Definition.
func NewSummarizeExternalTool(summarize func(string) string) Tool {
	return &summarizeExternalTool{summarize: summarize}
}

func (t *summarizeExternalTool) Definition() Definition {
	return Definition{
		Name:        "summarize_external",
		Description: "Summarize untrusted external text. Output is plane=Data and carries no action capability.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneData,
		Provenance:  types.ProvenanceExternal,
		Schema:      schemaFor(summarizeExternalArgs{}),
		Args:        &summarizeExternalArgs{},
	}
}

func (t *summarizeExternalTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args summarizeExternalArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	summary := t.summarize(args.Text)
	return types.ToolResult{
		ToolName:   "summarize_external",
		ForModel:   summary,
		ForUser:    summary,
		Provenance: types.ProvenanceExternal,
		Success:    true,
	}, nil
}
