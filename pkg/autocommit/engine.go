// Package autocommit implements the Auto-Commit Engine of spec.md §4.10:
// a versioning daemon that snapshots a document on an edit-burst or
// time-burst trigger, or on document close/session end. Grounded on
// kadirpekel/hector's pkg/checkpoint.Manager shape (a small manager
// owning policy plus a storage call-through) and its background-timer
// usage elsewhere in the teacher (dev/cmd/benchmark) rather than a
// dedicated scheduling library — no repo in this corpus imports one for
// a fixed burst/interval policy, so time.Ticker is the grounded choice.
package autocommit

import (
	"context"
	"sync"
	"time"

	"github.com/clenoble/sovereign/pkg/logger"
	"github.com/clenoble/sovereign/pkg/ports"
)

// docState tracks one document's commit eligibility.
type docState struct {
	editsSinceCommit int
	lastCommitAt     time.Time
	hasEditInWindow  bool
}

// Engine observes document edit events and emits commits on the policy
// triggers of §4.10.
type Engine struct {
	mu          sync.Mutex
	store       ports.GraphStore
	burstEdits  int
	burstWindow time.Duration
	states      map[string]*docState
	author      string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds an auto-commit engine against store with the configured
// burst thresholds.
func New(store ports.GraphStore, burstEdits int, burstWindow time.Duration, author string) *Engine {
	if burstEdits <= 0 {
		burstEdits = 50
	}
	if burstWindow <= 0 {
		burstWindow = 5 * time.Minute
	}
	if author == "" {
		author = "orchestrator"
	}
	return &Engine{
		store:       store,
		burstEdits:  burstEdits,
		burstWindow: burstWindow,
		states:      make(map[string]*docState),
		author:      author,
		stopCh:      make(chan struct{}),
	}
}

// RecordEdit registers one edit against docID; if the edit-burst
// threshold (E_burst) is reached, a commit is emitted immediately.
func (e *Engine) RecordEdit(ctx context.Context, docID string) error {
	e.mu.Lock()
	st, ok := e.states[docID]
	if !ok {
		st = &docState{lastCommitAt: time.Now()}
		e.states[docID] = st
	}
	st.editsSinceCommit++
	st.hasEditInWindow = true
	reached := st.editsSinceCommit >= e.burstEdits
	e.mu.Unlock()

	if reached {
		return e.Commit(ctx, docID, "Automatic checkpoint (edit burst)")
	}
	return nil
}

// Tick is called by the housekeeping timer; it commits any document
// whose elapsed time since last commit has reached T_burst and which has
// seen at least one edit in that window (§4.10 policy (b)).
func (e *Engine) Tick(ctx context.Context) {
	now := time.Now()
	var due []string
	e.mu.Lock()
	for docID, st := range e.states {
		if st.hasEditInWindow && now.Sub(st.lastCommitAt) >= e.burstWindow {
			due = append(due, docID)
		}
	}
	e.mu.Unlock()

	for _, docID := range due {
		if err := e.Commit(ctx, docID, "Automatic checkpoint (interval)"); err != nil {
			logger.Get().Warn("autocommit: tick commit failed", "document_id", docID, "error", err)
		}
	}
}

// DocumentClosed commits docID immediately if it has uncommitted edits
// (§4.10: "must commit when it is closed").
func (e *Engine) DocumentClosed(ctx context.Context, docID string) error {
	return e.commitIfDirty(ctx, docID, "Automatic checkpoint (document closed)")
}

// SessionEnded commits every document with uncommitted edits.
func (e *Engine) SessionEnded(ctx context.Context) {
	e.mu.Lock()
	docIDs := make([]string, 0, len(e.states))
	for docID := range e.states {
		docIDs = append(docIDs, docID)
	}
	e.mu.Unlock()
	for _, docID := range docIDs {
		if err := e.commitIfDirty(ctx, docID, "Automatic checkpoint (session end)"); err != nil {
			logger.Get().Warn("autocommit: session-end commit failed", "document_id", docID, "error", err)
		}
	}
}

func (e *Engine) commitIfDirty(ctx context.Context, docID, message string) error {
	e.mu.Lock()
	st, ok := e.states[docID]
	dirty := ok && st.editsSinceCommit > 0
	e.mu.Unlock()
	if !dirty {
		return nil
	}
	return e.Commit(ctx, docID, message)
}

// Commit snapshots docID's current title/content and resets its edit
// counters. A commit is never emitted for a document with zero edits
// since head (§4.10 invariant), enforced by callers checking dirtiness
// before calling Commit directly from outside RecordEdit/Tick.
func (e *Engine) Commit(ctx context.Context, docID, message string) error {
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if _, err := e.store.CreateCommit(ctx, docID, message, doc); err != nil {
		return err
	}
	e.mu.Lock()
	if st, ok := e.states[docID]; ok {
		st.editsSinceCommit = 0
		st.lastCommitAt = time.Now()
		st.hasEditInWindow = false
	}
	e.mu.Unlock()
	return nil
}

// Restore implements §4.10's restore policy: read commit c's snapshot,
// overwrite the document's title/content, and create a new commit whose
// parent is the prior head_commit (not c) with the message
// "Restored from {c.short_id}".
func (e *Engine) Restore(ctx context.Context, docID, commitID string) (ports.Document, error) {
	c, err := e.store.GetCommit(ctx, commitID)
	if err != nil {
		return ports.Document{}, err
	}
	title, content := c.Title, c.Content
	updated, err := e.store.UpdateDocument(ctx, ports.DocumentPatch{ID: docID, Title: &title, Content: &content})
	if err != nil {
		return ports.Document{}, err
	}
	if _, err := e.store.CreateCommit(ctx, docID, "Restored from "+c.ShortID(), updated); err != nil {
		return ports.Document{}, err
	}
	return updated, nil
}

// StartHousekeeping launches the periodic Tick loop, recovering from any
// panic and restarting per §7's background-worker propagation policy.
func (e *Engine) StartHousekeeping(ctx context.Context, tick time.Duration) {
	go e.runHousekeeping(ctx, tick)
}

func (e *Engine) runHousekeeping(ctx context.Context, tick time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			logger.Get().Error("autocommit: housekeeping worker panicked, restarting", "panic", p)
			go e.runHousekeeping(ctx, tick)
		}
	}()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Stop halts the housekeeping loop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
