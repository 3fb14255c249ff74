package sessionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/types"
)

func TestAppendAndReadRangeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	l, compromised, err := Open(path, nil)
	require.NoError(t, err)
	require.False(t, compromised)
	defer l.Close()

	require.NoError(t, l.Append(types.EntryUserInput, []byte("hello")))
	require.NoError(t, l.Append(types.EntryToolResult, []byte("world")))

	entries, err := l.ReadRange(time.Unix(0, 0), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "hello", string(entries[0].Payload))
}

func TestVerifyChainCleanLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	l, _, err := Open(path, nil)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(types.EntryUserInput, []byte("entry")))
	}
	ok, err := l.VerifyChain()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEncryptedLogTamperDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	key := []byte("a-32-byte-ish-device-key-material")

	l, compromised, err := Open(path, key)
	require.NoError(t, err)
	require.False(t, compromised)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Append(types.EntryUserInput, []byte("secret-entry")))
	}
	require.NoError(t, l.Close())

	flipThirdEntryByte(t, path)

	l2, compromised2, err := Open(path, key)
	require.NoError(t, err)
	require.True(t, compromised2)
	defer l2.Close()

	ok, verr := l2.VerifyChain()
	require.False(t, ok)
	require.Error(t, verr)
}

// flipThirdEntryByte corrupts one byte inside the third JSONL line's
// payload field, simulating a tampered ciphertext.
func flipThirdEntryByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	require.GreaterOrEqual(t, len(lines), 3)

	var rec record
	require.NoError(t, json.Unmarshal(lines[2], &rec))
	payload := []byte(rec.Payload)
	// Flip a byte well inside the base64 body, away from padding.
	mid := len(payload) / 2
	if payload[mid] == 'A' {
		payload[mid] = 'B'
	} else {
		payload[mid] = 'A'
	}
	rec.Payload = string(payload)
	corrupted, err := json.Marshal(rec)
	require.NoError(t, err)
	lines[2] = corrupted

	var out []byte
	for _, line := range lines {
		out = append(out, line...)
		out = append(out, '\n')
	}
	require.NoError(t, os.WriteFile(path, out, 0o600))
	_ = data
}
