package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/clenoble/sovereign/pkg/ports"
	"github.com/clenoble/sovereign/pkg/types"
)

func schemaFor(v any) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(v)
}

// ---- search_documents (Observe / Control) ---------------------------

type searchDocumentsArgs struct {
	Query string `mapstructure:"query"`
}

type searchDocumentsTool struct{ store ports.GraphStore }

// NewSearchDocumentsTool returns the read-only document search tool.
func NewSearchDocumentsTool(store ports.GraphStore) Tool {
	return &searchDocumentsTool{store: store}
}

func (t *searchDocumentsTool) Definition() Definition {
	return Definition{
		Name:        "search_documents",
		Description: "Search the user's documents by keyword.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(searchDocumentsArgs{}),
		Args:        &searchDocumentsArgs{},
	}
}

func (t *searchDocumentsTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args searchDocumentsArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}

	docs, err := t.store.SearchDocuments(ctx, args.Query)
	if err != nil {
		return types.ToolResult{ToolName: "search_documents", Success: false, ErrorMessage: err.Error()}, nil
	}
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		titles = append(titles, fmt.Sprintf("%s (%s)", d.Title, d.ID))
	}
	rendered := strings.Join(titles, "; ")
	return types.ToolResult{
		ToolName:   "search_documents",
		ForModel:   rendered,
		ForUser:    rendered,
		Provenance: types.ProvenanceOwned,
		Success:    true,
	}, nil
}

// ---- get_document (Observe / Control) --------------------------------

type getDocumentArgs struct {
	DocumentID string `mapstructure:"document_id"`
}

type getDocumentTool struct{ store ports.GraphStore }

func NewGetDocumentTool(store ports.GraphStore) Tool { return &getDocumentTool{store: store} }

func (t *getDocumentTool) Definition() Definition {
	return Definition{
		Name:        "get_document",
		Description: "Fetch a single document by id.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(getDocumentArgs{}),
		Args:        &getDocumentArgs{},
	}
}

func (t *getDocumentTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args getDocumentArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	doc, err := t.store.GetDocument(ctx, args.DocumentID)
	if err != nil {
		return types.ToolResult{ToolName: "get_document", Success: false, ErrorMessage: err.Error()}, nil
	}
	body, _ := json.Marshal(doc)
	return types.ToolResult{
		ToolName:   "get_document",
		ForModel:   string(body),
		ForUser:    doc.Title,
		Provenance: types.ProvenanceOwned,
		Success:    true,
	}, nil
}

// ---- list_documents / list_threads / list_contacts -------------------

type listDocumentsArgs struct {
	ThreadID string `mapstructure:"thread_id"`
}

type listDocumentsTool struct{ store ports.GraphStore }

func NewListDocumentsTool(store ports.GraphStore) Tool { return &listDocumentsTool{store: store} }

func (t *listDocumentsTool) Definition() Definition {
	return Definition{
		Name:        "list_documents",
		Description: "List documents, optionally scoped to a thread.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(listDocumentsArgs{}),
		Args:        &listDocumentsArgs{},
	}
}

func (t *listDocumentsTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args listDocumentsArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	docs, err := t.store.ListDocuments(ctx, ports.DocumentFilter{ThreadID: args.ThreadID})
	if err != nil {
		return types.ToolResult{ToolName: "list_documents", Success: false, ErrorMessage: err.Error()}, nil
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Title)
	}
	rendered := strings.Join(names, "; ")
	return types.ToolResult{ToolName: "list_documents", ForModel: rendered, ForUser: rendered, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type listThreadsTool struct{ store ports.GraphStore }

func NewListThreadsTool(store ports.GraphStore) Tool { return &listThreadsTool{store: store} }

func (t *listThreadsTool) Definition() Definition {
	return Definition{
		Name:        "list_threads",
		Description: "List all threads (projects).",
		Level:       types.LevelObserve,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(struct{}{}),
		Args:        &struct{}{},
	}
}

func (t *listThreadsTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	threads, err := t.store.ListThreads(ctx, ports.ThreadFilter{})
	if err != nil {
		return types.ToolResult{ToolName: "list_threads", Success: false, ErrorMessage: err.Error()}, nil
	}
	names := make([]string, 0, len(threads))
	for _, th := range threads {
		names = append(names, th.Name)
	}
	rendered := strings.Join(names, "; ")
	return types.ToolResult{ToolName: "list_threads", ForModel: rendered, ForUser: rendered, Provenance: types.ProvenanceOwned, Success: true}, nil
}

type listContactsTool struct{ store ports.GraphStore }

func NewListContactsTool(store ports.GraphStore) Tool { return &listContactsTool{store: store} }

func (t *listContactsTool) Definition() Definition {
	return Definition{
		Name:        "list_contacts",
		Description: "List known contacts.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      schemaFor(struct{}{}),
		Args:        &struct{}{},
	}
}

func (t *listContactsTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	contacts, err := t.store.ListContacts(ctx)
	if err != nil {
		return types.ToolResult{ToolName: "list_contacts", Success: false, ErrorMessage: err.Error()}, nil
	}
	names := make([]string, 0, len(contacts))
	for _, c := range contacts {
		names = append(names, c.Name)
	}
	rendered := strings.Join(names, "; ")
	return types.ToolResult{ToolName: "list_contacts", ForModel: rendered, ForUser: rendered, Provenance: types.ProvenanceOwned, Success: true}, nil
}

// ---- search_messages (Observe / Data — message bodies are external) --

type searchMessagesArgs struct {
	Query string `mapstructure:"query"`
}

type searchMessagesTool struct{ store ports.GraphStore }

func NewSearchMessagesTool(store ports.GraphStore) Tool { return &searchMessagesTool{store: store} }

func (t *searchMessagesTool) Definition() Definition {
	return Definition{
		Name:        "search_messages",
		Description: "Search communication messages by keyword.",
		Level:       types.LevelObserve,
		Plane:       types.PlaneData,
		Provenance:  types.ProvenanceExternal,
		Schema:      schemaFor(searchMessagesArgs{}),
		Args:        &searchMessagesArgs{},
	}
}

func (t *searchMessagesTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	var args searchMessagesArgs
	if err := ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	if err := decodeInto(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	msgs, err := t.store.SearchMessages(ctx, args.Query)
	if err != nil {
		return types.ToolResult{ToolName: "search_messages", Success: false, ErrorMessage: err.Error()}, nil
	}
	bodies := make([]string, 0, len(msgs))
	for _, m := range msgs {
		bodies = append(bodies, m.Body)
	}
	rendered := strings.Join(bodies, "\n---\n")
	return types.ToolResult{
		ToolName:   "search_messages",
		ForModel:   rendered,
		ForUser:    rendered,
		Provenance: types.ProvenanceExternal,
		Success:    true,
	}, nil
}

// decodeInto is a small convenience wrapper so built-in tools don't
// repeat the mapstructure boilerplate once ValidateArgs has already
// proven raw matches the schema.
func decodeInto(raw map[string]any, dst any) error {
	return mapstructure.Decode(raw, dst)
}

// RegisterBuiltins wires the baseline tool catalogue of §4.5 against a
// single graph store. summarize wraps whatever data-plane model backend
// the caller has configured; pass nil to fall back to a pass-through
// (useful for tests that don't care about summary quality).
func RegisterBuiltins(r *Registry, store ports.GraphStore, summarize func(string) string) error {
	if summarize == nil {
		summarize = func(s string) string { return s }
	}
	tools := []Tool{
		NewSearchDocumentsTool(store),
		NewGetDocumentTool(store),
		NewListDocumentsTool(store),
		NewListThreadsTool(store),
		NewListContactsTool(store),
		NewSearchMessagesTool(store),
		NewCreateDocumentTool(store),
		NewCreateThreadTool(store),
		NewRenameThreadTool(store),
		NewMoveDocumentTool(store),
		NewDeleteDocumentTool(store),
		NewDeleteThreadTool(store),
		NewSummarizeExternalTool(summarize),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
