package autocommit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/graphstore"
	"github.com/clenoble/sovereign/pkg/ports"
)

func newDoc(t *testing.T, store *graphstore.Memory, title string) ports.Document {
	t.Helper()
	doc, err := store.CreateDocument(context.Background(), ports.DocumentDraft{Title: title, Content: "v1"})
	require.NoError(t, err)
	return doc
}

func TestRecordEditTriggersCommitAtBurstThreshold(t *testing.T) {
	store := graphstore.NewMemory()
	doc := newDoc(t, store, "Notes")
	e := New(store, 3, time.Hour, "tester")

	ctx := context.Background()
	require.NoError(t, e.RecordEdit(ctx, doc.ID))
	require.NoError(t, e.RecordEdit(ctx, doc.ID))
	commits, err := store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, commits)

	require.NoError(t, e.RecordEdit(ctx, doc.ID))
	commits, err = store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Automatic checkpoint (edit burst)", commits[0].Message)
}

func TestTickCommitsOnlyDocumentsWithEditInWindow(t *testing.T) {
	store := graphstore.NewMemory()
	edited := newDoc(t, store, "Edited")
	untouched := newDoc(t, store, "Untouched")
	e := New(store, 100, time.Hour, "tester")

	ctx := context.Background()
	require.NoError(t, e.RecordEdit(ctx, edited.ID))

	e.mu.Lock()
	e.states[edited.ID].lastCommitAt = time.Now().Add(-2 * time.Hour)
	e.mu.Unlock()

	e.Tick(ctx)

	editedCommits, err := store.ListCommits(ctx, edited.ID)
	require.NoError(t, err)
	assert.Len(t, editedCommits, 1)

	untouchedCommits, err := store.ListCommits(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Empty(t, untouchedCommits)
}

func TestDocumentClosedCommitsOnlyIfDirty(t *testing.T) {
	store := graphstore.NewMemory()
	doc := newDoc(t, store, "Notes")
	e := New(store, 100, time.Hour, "tester")

	ctx := context.Background()
	require.NoError(t, e.DocumentClosed(ctx, doc.ID))
	commits, err := store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, commits)

	require.NoError(t, e.RecordEdit(ctx, doc.ID))
	require.NoError(t, e.DocumentClosed(ctx, doc.ID))
	commits, err = store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Automatic checkpoint (document closed)", commits[0].Message)
}

func TestSessionEndedCommitsEveryDirtyDocument(t *testing.T) {
	store := graphstore.NewMemory()
	dirty := newDoc(t, store, "Dirty")
	clean := newDoc(t, store, "Clean")
	e := New(store, 100, time.Hour, "tester")

	ctx := context.Background()
	require.NoError(t, e.RecordEdit(ctx, dirty.ID))
	e.SessionEnded(ctx)

	dirtyCommits, err := store.ListCommits(ctx, dirty.ID)
	require.NoError(t, err)
	assert.Len(t, dirtyCommits, 1)

	cleanCommits, err := store.ListCommits(ctx, clean.ID)
	require.NoError(t, err)
	assert.Empty(t, cleanCommits)
}

func TestRestoreParentsOffPriorHeadAndRenamesMessage(t *testing.T) {
	store := graphstore.NewMemory()
	doc := newDoc(t, store, "Notes")
	e := New(store, 100, time.Hour, "tester")
	ctx := context.Background()

	require.NoError(t, e.Commit(ctx, doc.ID, "first checkpoint"))
	firstCommits, err := store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, firstCommits, 1)
	firstCommitID := firstCommits[0].ID

	patched, err := store.UpdateDocument(ctx, ports.DocumentPatch{ID: doc.ID, Title: strPtr("Notes v2")})
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx, doc.ID, "second checkpoint"))
	secondCommits, err := store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, secondCommits, 2)
	priorHeadID := secondCommits[1].ID
	_ = patched

	restored, err := e.Restore(ctx, doc.ID, firstCommitID)
	require.NoError(t, err)
	assert.Equal(t, "Notes", restored.Title)

	chain, err := store.ListCommits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	last := chain[len(chain)-1]
	assert.Equal(t, priorHeadID, last.ParentCommit)
	assert.Contains(t, last.Message, "Restored from")
}

func strPtr(s string) *string { return &s }
