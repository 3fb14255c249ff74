// Package trust implements the per-workflow approval/rejection ledger
// described in spec.md §4.7. Persistence is backed by
// github.com/mattn/go-sqlite3, the same driver kadirpekel/hector uses for
// its own session and task stores (pkg/memory/session_service_sql.go,
// pkg/task/task_service_sql.go); the ledger is a single small table,
// written through on every change and loaded in full on Open.
package trust

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clenoble/sovereign/pkg/types"
)

// LedgerError is the typed error the ledger raises, carrying
// {Action, Message, Err}; the component name is fixed as the "trust:"
// prefix of its message.
type LedgerError struct {
	Action  string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trust:%s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("trust:%s: %s", e.Action, e.Message)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Decision is what record() is told about a workflow's outcome.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
)

// Ledger is the trust ledger: an in-memory cache backed by a write-through
// sqlite table. Approvals and rejections are monotone per key except that
// a rejection resets approvals to zero for that key (invariant 7); the
// ledger never decays trust from mere absence of use.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	cache  map[string]types.TrustRecord
}

// Open creates (or attaches to) the sqlite-backed ledger at path and
// loads every existing record into the in-memory cache.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &LedgerError{Action: "open", Message: "open sqlite database", Err: err}
	}
	const schema = `
CREATE TABLE IF NOT EXISTS trust_records (
	workflow_key      TEXT PRIMARY KEY,
	approvals         INTEGER NOT NULL DEFAULT 0,
	rejections        INTEGER NOT NULL DEFAULT 0,
	last_decision_at  INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &LedgerError{Action: "open", Message: "create schema", Err: err}
	}

	l := &Ledger{db: db, cache: make(map[string]types.TrustRecord)}
	if err := l.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) loadAll() error {
	rows, err := l.db.Query(`SELECT workflow_key, approvals, rejections, last_decision_at FROM trust_records`)
	if err != nil {
		return &LedgerError{Action: "load", Message: "query trust_records", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var rec types.TrustRecord
		var lastDecisionUnix int64
		if err := rows.Scan(&rec.WorkflowKey, &rec.Approvals, &rec.Rejections, &lastDecisionUnix); err != nil {
			return &LedgerError{Action: "load", Message: "scan row", Err: err}
		}
		if lastDecisionUnix > 0 {
			rec.LastDecisionAt = time.Unix(lastDecisionUnix, 0).UTC()
		}
		l.cache[rec.WorkflowKey] = rec
	}
	return rows.Err()
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Lookup returns the current record for workflowKey, or a fresh zero
// record if none exists yet.
func (l *Ledger) Lookup(workflowKey string) types.TrustRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.cache[workflowKey]; ok {
		return rec
	}
	return types.TrustRecord{WorkflowKey: workflowKey}
}

// Record applies decision to workflowKey and persists the result.
// A Rejected decision resets Approvals to zero for this key, per
// invariant 7; approvals for other keys are never touched.
func (l *Ledger) Record(workflowKey string, decision Decision) (types.TrustRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.cache[workflowKey]
	rec.WorkflowKey = workflowKey
	rec.LastDecisionAt = time.Now().UTC()

	switch decision {
	case Approved:
		rec.Approvals++
	case Rejected:
		rec.Rejections++
		rec.Approvals = 0
	default:
		return types.TrustRecord{}, &LedgerError{Action: "record", Message: fmt.Sprintf("unknown decision %q", decision)}
	}

	if _, err := l.db.Exec(`
INSERT INTO trust_records (workflow_key, approvals, rejections, last_decision_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(workflow_key) DO UPDATE SET
	approvals = excluded.approvals,
	rejections = excluded.rejections,
	last_decision_at = excluded.last_decision_at
`, rec.WorkflowKey, rec.Approvals, rec.Rejections, rec.LastDecisionAt.Unix()); err != nil {
		return types.TrustRecord{}, &LedgerError{Action: "record", Message: "persist record", Err: err}
	}

	l.cache[workflowKey] = rec
	return rec, nil
}

// Reset clears trust history for workflowKey entirely (used by operator
// tooling, not by the core's own decision procedure).
func (l *Ledger) Reset(workflowKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.Exec(`DELETE FROM trust_records WHERE workflow_key = ?`, workflowKey); err != nil {
		return &LedgerError{Action: "reset", Message: "delete record", Err: err}
	}
	delete(l.cache, workflowKey)
	return nil
}

// Export returns every record currently held, for diagnostics or backup.
func (l *Ledger) Export() []types.TrustRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.TrustRecord, 0, len(l.cache))
	for _, rec := range l.cache {
		out = append(out, rec)
	}
	return out
}

// WorkflowKey derives the deterministic workflow key for a proposal, per
// SPEC_FULL.md's "workflow key derivation function": an action variant,
// the tool or skill that would perform it, and whether its target is
// first-party (owned) or external.
func WorkflowKey(action types.ActionVariant, toolOrSkillID string, provenance types.Provenance) string {
	targetClass := "owned"
	if provenance == types.ProvenanceExternal {
		targetClass = "external"
	}
	return fmt.Sprintf("%s:%s:%s", action, toolOrSkillID, targetClass)
}
