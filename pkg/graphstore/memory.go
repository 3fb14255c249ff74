// Package graphstore provides an in-memory GraphStore implementation.
// The real graph store is out of scope for this core (spec.md §1); this
// implementation exists so the orchestrator, gate, and auto-commit engine
// can be exercised end-to-end in tests, the way kadirpekel/hector's
// pkg/memory/mocks.go backs its own service tests with in-memory fakes.
package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"strings"

	"github.com/google/uuid"

	"github.com/clenoble/sovereign/pkg/ports"
	"github.com/clenoble/sovereign/pkg/types"
)

// Memory is a linearisable, single-process GraphStore. Every operation
// takes the same mutex, which trivially satisfies the "per-key
// operations are linearisable" constraint of §6.1.
type Memory struct {
	mu        sync.Mutex
	documents map[string]ports.Document
	threads   map[string]ports.Thread
	contacts  []ports.Contact
	messages  []ports.Message
	commits   map[string][]types.Commit // docID -> chain, oldest first
}

// NewMemory creates an empty in-memory graph store.
func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string]ports.Document),
		threads:   make(map[string]ports.Thread),
		commits:   make(map[string][]types.Commit),
	}
}

// SeedContacts and SeedMessages let tests populate read-only fixtures
// without going through the write path.
func (m *Memory) SeedContacts(contacts ...ports.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, contacts...)
}

func (m *Memory) SeedMessages(messages ...ports.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages...)
}

func (m *Memory) CreateDocument(ctx context.Context, draft ports.DocumentDraft) (ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := ports.Document{ID: uuid.NewString(), ThreadID: draft.ThreadID, Title: draft.Title, Content: draft.Content}
	m.documents[doc.ID] = doc
	return doc, nil
}

func (m *Memory) GetDocument(ctx context.Context, id string) (ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return ports.Document{}, fmt.Errorf("graphstore: document %s not found", id)
	}
	return doc, nil
}

func (m *Memory) UpdateDocument(ctx context.Context, patch ports.DocumentPatch) (ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[patch.ID]
	if !ok {
		return ports.Document{}, fmt.Errorf("graphstore: document %s not found", patch.ID)
	}
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Content != nil {
		doc.Content = *patch.Content
	}
	m.documents[patch.ID] = doc
	return doc, nil
}

func (m *Memory) SoftDeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("graphstore: document %s not found", id)
	}
	now := time.Now()
	doc.DeletedAt = &now
	m.documents[id] = doc
	return nil
}

func (m *Memory) RestoreDocument(ctx context.Context, id string) (ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return ports.Document{}, fmt.Errorf("graphstore: document %s not found", id)
	}
	doc.DeletedAt = nil
	m.documents[id] = doc
	return doc, nil
}

func (m *Memory) PurgeDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	delete(m.commits, id)
	return nil
}

func (m *Memory) CreateThread(ctx context.Context, name, description string) (ports.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	th := ports.Thread{ID: uuid.NewString(), Name: name, Description: description}
	m.threads[th.ID] = th
	return th, nil
}

func (m *Memory) RenameThread(ctx context.Context, id, newName string) (ports.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.threads[id]
	if !ok {
		return ports.Thread{}, fmt.Errorf("graphstore: thread %s not found", id)
	}
	th.Name = newName
	m.threads[id] = th
	return th, nil
}

func (m *Memory) SoftDeleteThread(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.threads[id]
	if !ok {
		return fmt.Errorf("graphstore: thread %s not found", id)
	}
	now := time.Now()
	th.DeletedAt = &now
	m.threads[id] = th
	return nil
}

func (m *Memory) MoveDocumentToThread(ctx context.Context, docID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[docID]
	if !ok {
		return fmt.Errorf("graphstore: document %s not found", docID)
	}
	doc.ThreadID = threadID
	m.documents[docID] = doc
	return nil
}

func (m *Memory) ListDocuments(ctx context.Context, filter ports.DocumentFilter) ([]ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Document, 0)
	for _, doc := range m.documents {
		if !filter.IncludeDeleted && doc.DeletedAt != nil {
			continue
		}
		if filter.ThreadID != "" && doc.ThreadID != filter.ThreadID {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListThreads(ctx context.Context, filter ports.ThreadFilter) ([]ports.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Thread, 0)
	for _, th := range m.threads {
		if !filter.IncludeDeleted && th.DeletedAt != nil {
			continue
		}
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListContacts(ctx context.Context) ([]ports.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Contact, len(m.contacts))
	copy(out, m.contacts)
	return out, nil
}

func (m *Memory) SearchMessages(ctx context.Context, query string) ([]ports.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Message, 0)
	for _, msg := range m.messages {
		if query == "" || contains(msg.Body, query) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Memory) SearchDocuments(ctx context.Context, query string) ([]ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Document, 0)
	for _, doc := range m.documents {
		if doc.DeletedAt != nil {
			continue
		}
		if query == "" || contains(doc.Title, query) || contains(doc.Content, query) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateCommit(ctx context.Context, docID, message string, snapshot ports.Document) (types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.commits[docID]
	parent := ""
	if len(chain) > 0 {
		parent = chain[len(chain)-1].ID
	}
	c := types.Commit{
		ID:           uuid.NewString(),
		DocumentID:   docID,
		ParentCommit: parent,
		Author:       "local-user",
		Timestamp:    time.Now(),
		Message:      message,
		Title:        snapshot.Title,
		Content:      snapshot.Content,
	}
	m.commits[docID] = append(chain, c)

	doc, ok := m.documents[docID]
	if ok {
		doc.HeadCommit = c.ID
		m.documents[docID] = doc
	}
	return c, nil
}

func (m *Memory) ListCommits(ctx context.Context, docID string) ([]types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.commits[docID]
	out := make([]types.Commit, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *Memory) GetCommit(ctx context.Context, id string) (types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chain := range m.commits {
		for _, c := range chain {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return types.Commit{}, fmt.Errorf("graphstore: commit %s not found", id)
}

func contains(haystack, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

var _ ports.GraphStore = (*Memory)(nil)
