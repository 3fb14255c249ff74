// Package sessionlog implements the append-only, tamper-evident session
// log of spec.md §4.9. The payload stream is a flat JSONL file
// (§6.8: "orchestrator/session_log.jsonl[.enc]"); a small sqlite index
// (github.com/mattn/go-sqlite3, the same driver kadirpekel/hector uses
// for its session/task stores) records each entry's index, byte offset,
// timestamp and kind on append. ReadRange and VerifyChain do not consult
// the index; both read the whole file. Encryption, when
// enabled, is AES-256-GCM from the standard library — see DESIGN.md for
// why no third-party crypto dependency in this corpus fits that role.
package sessionlog

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clenoble/sovereign/pkg/types"
)

// LogError is the log's typed error.
type LogError struct {
	Action  string
	Message string
	Err     error
}

func (e *LogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sessionlog:%s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("sessionlog:%s: %s", e.Action, e.Message)
}

func (e *LogError) Unwrap() error { return e.Err }

// BreakAt identifies where the hash chain first fails to verify.
type BreakAt struct {
	Index     int
	Timestamp time.Time
}

// record is the on-disk line shape; Payload is either the plaintext
// bytes (unencrypted mode) or base64 ciphertext (encrypted mode).
type record struct {
	Timestamp int64            `json:"ts"`
	Kind      types.SessionEntryKind `json:"kind"`
	Payload   string           `json:"payload"`
	PrevHash  string           `json:"prev_hash,omitempty"`
	Encrypted bool             `json:"encrypted,omitempty"`
}

// Log is one append-only session log file plus its sqlite offset index.
type Log struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	db         *sql.DB
	encrypt    bool
	aead       cipher.AEAD
	lastHash   []byte
	compromised bool
}

// Open opens (creating if absent) the log file at path. If key is
// non-nil, every appended payload is sealed with AES-256-GCM under a key
// derived from key via SHA-256 domain separation, and the hash chain
// covers the ciphertext. verify_chain is run automatically on open and
// any break is recorded as a compromise but does not prevent startup
// (§7: "further appends are permitted... but the compromise state is
// persisted and surfaced at next session start").
func Open(path string, key []byte) (*Log, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, false, &LogError{Action: "open", Message: "open log file", Err: err}
	}

	dbPath := path + ".index.db"
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		f.Close()
		return nil, false, &LogError{Action: "open", Message: "open index db", Err: err}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		idx INTEGER PRIMARY KEY,
		offset INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL
	)`); err != nil {
		db.Close()
		f.Close()
		return nil, false, &LogError{Action: "open", Message: "create index schema", Err: err}
	}

	l := &Log{path: path, file: f, db: db, encrypt: key != nil}
	if key != nil {
		derived := sha256.Sum256(append([]byte("sovereign-sessionlog-v1\x00"), key...))
		block, err := aes.NewCipher(derived[:])
		if err != nil {
			db.Close()
			f.Close()
			return nil, false, &LogError{Action: "open", Message: "init cipher", Err: err}
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			db.Close()
			f.Close()
			return nil, false, &LogError{Action: "open", Message: "init gcm", Err: err}
		}
		l.aead = gcm
	}

	compromisedMarker := path + ".compromised"
	if _, err := os.Stat(compromisedMarker); err == nil {
		l.compromised = true
	}

	if _, err := l.VerifyChain(); err != nil {
		var brk *BreakAt
		if b, ok := err.(*ChainBreakError); ok {
			brk = &b.At
		}
		l.compromised = true
		_ = os.WriteFile(compromisedMarker, []byte(fmt.Sprintf("chain break: %+v", brk)), 0o600)
	}

	if err := l.seedLastHash(); err != nil {
		db.Close()
		f.Close()
		return nil, false, err
	}

	return l, l.compromised, nil
}

func (l *Log) seedLastHash() error {
	recs, err := l.readAllRaw()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	last := recs[len(recs)-1]
	h := sha256.Sum256([]byte(last.Payload))
	l.lastHash = h[:]
	return nil
}

// Close releases the file and index handles.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	errFile := l.file.Close()
	errDB := l.db.Close()
	if errFile != nil {
		return errFile
	}
	return errDB
}

// Compromised reports whether the chain was found broken at Open.
func (l *Log) Compromised() bool { return l.compromised }

// Append writes one new entry. When encryption is on, payload is sealed
// with AES-GCM and the prev_hash links to the previous entry's
// ciphertext (invariant 5).
func (l *Log) Append(kind types.SessionEntryKind, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	var stored string
	if l.encrypt {
		nonce := make([]byte, l.aead.NonceSize())
		if _, err := secureRandom(nonce); err != nil {
			return &LogError{Action: "append", Message: "generate nonce", Err: err}
		}
		sealed := l.aead.Seal(nonce, nonce, payload, l.lastHash)
		stored = base64.StdEncoding.EncodeToString(sealed)
	} else {
		stored = base64.StdEncoding.EncodeToString(payload)
	}

	rec := record{Timestamp: now.UnixNano(), Kind: kind, Payload: stored, Encrypted: l.encrypt}
	if l.lastHash != nil {
		rec.PrevHash = base64.StdEncoding.EncodeToString(l.lastHash)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return &LogError{Action: "append", Message: "marshal entry", Err: err}
	}

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return &LogError{Action: "append", Message: "seek end", Err: err}
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return &LogError{Action: "append", Message: "write entry", Err: err}
	}
	if err := l.file.Sync(); err != nil {
		return &LogError{Action: "append", Message: "fsync", Err: err}
	}

	h := sha256.Sum256([]byte(rec.Payload))
	l.lastHash = h[:]

	var idx int
	row := l.db.QueryRow(`SELECT COALESCE(MAX(idx), -1) + 1 FROM entries`)
	if err := row.Scan(&idx); err != nil {
		return &LogError{Action: "append", Message: "compute next index", Err: err}
	}
	if _, err := l.db.Exec(`INSERT INTO entries (idx, offset, ts, kind) VALUES (?, ?, ?, ?)`,
		idx, offset, now.UnixNano(), string(kind)); err != nil {
		return &LogError{Action: "append", Message: "index entry", Err: err}
	}
	return nil
}

// ReadRange returns entries with timestamps in [from, to]. Payloads are
// decrypted (if encryption is enabled) before being returned; callers
// that only need metadata should prefer scanning the index directly.
func (l *Log) ReadRange(from, to time.Time) ([]types.SessionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := l.readAllRaw()
	if err != nil {
		return nil, err
	}

	out := make([]types.SessionEntry, 0)
	var prevHash []byte
	for _, rec := range recs {
		ts := time.Unix(0, rec.Timestamp).UTC()
		payloadBytes, decErr := l.decode(rec, prevHash)
		h := sha256.Sum256([]byte(rec.Payload))
		prevHash = h[:]

		if ts.Before(from) || ts.After(to) {
			continue
		}
		entry := types.SessionEntry{Timestamp: ts, Kind: rec.Kind}
		if decErr == nil {
			entry.Payload = payloadBytes
		}
		if rec.Encrypted && rec.PrevHash != "" {
			if prev, err := base64.StdEncoding.DecodeString(rec.PrevHash); err == nil {
				entry.PrevHash = prev
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// ChainBreakError reports the first entry whose prev_hash (and, under
// encryption, authentication tag) fails to match.
type ChainBreakError struct{ At BreakAt }

func (e *ChainBreakError) Error() string {
	return fmt.Sprintf("sessionlog: chain break at entry %d (ts=%s)", e.At.Index, e.At.Timestamp)
}

// VerifyChain walks every entry and confirms prev_hash links hold (and,
// when encryption is on, that each payload authenticates). It returns
// nil on success or a *ChainBreakError naming the first bad entry.
func (l *Log) VerifyChain() (bool, error) {
	recs, err := l.readAllRaw()
	if err != nil {
		return false, err
	}

	var prevHash []byte
	for i, rec := range recs {
		if i > 0 {
			wantPrev := base64.StdEncoding.EncodeToString(prevHash)
			if rec.PrevHash != wantPrev {
				return false, &ChainBreakError{At: BreakAt{Index: i, Timestamp: time.Unix(0, rec.Timestamp).UTC()}}
			}
		}
		if _, err := l.decode(rec, prevHash); err != nil {
			return false, &ChainBreakError{At: BreakAt{Index: i, Timestamp: time.Unix(0, rec.Timestamp).UTC()}}
		}
		h := sha256.Sum256([]byte(rec.Payload))
		prevHash = h[:]
	}
	return true, nil
}

func (l *Log) decode(rec record, prevHash []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(rec.Payload)
	if err != nil {
		return nil, err
	}
	if !rec.Encrypted {
		return raw, nil
	}
	if l.aead == nil {
		return nil, fmt.Errorf("sessionlog: entry is encrypted but no key was supplied")
	}
	nonceSize := l.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("sessionlog: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	return l.aead.Open(nil, nonce, ciphertext, prevHash)
}

func (l *Log) readAllRaw() ([]record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, &LogError{Action: "read", Message: "open for read", Err: err}
	}
	defer f.Close()

	var recs []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &LogError{Action: "read", Message: "unmarshal entry", Err: err}
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LogError{Action: "read", Message: "scan log", Err: err}
	}
	return recs, nil
}

func secureRandom(b []byte) (int, error) {
	return crand.Read(b)
}
