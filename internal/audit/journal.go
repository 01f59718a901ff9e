package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a new journal.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// JournalEntry is one line in the hash-chained JSONL journal.
// Fields are structs or raw JSON so json.Marshal output is deterministic.
type JournalEntry struct {
	Timestamp     string          `json:"ts"`
	EventType     EventType       `json:"event_type"`
	CorrelationID string          `json:"correlation_id"`
	Event         json.RawMessage `json:"event"`
	PrevHash      string          `json:"prev_hash"`
}

// Journal is an append-only JSONL file of events with SHA-256 line chaining.
// Each entry's prev_hash is the hash of the previous line, so a deleted,
// inserted, or edited line breaks the chain. It implements Sink and Source.
type Journal struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// OpenJournal opens (or creates) a journal for appending.
// If the file already exists, it reads the last line to recover the chain tail.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing journal: %w", err)
		}
		scanner := newScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing journal: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Journal{path: path, file: file, prevHash: prevHash}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes e as a chained line and syncs to disk.
func (j *Journal) Append(e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	h := e.Meta()

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JournalEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		EventType:     h.Type,
		CorrelationID: h.CorrelationID,
		Event:         payload,
		PrevHash:      j.prevHash,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	j.prevHash = HashLine(line)
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

func (j *Journal) ByCorrelation(correlationID string) ([]Event, error) {
	return ReadJournal(j.path, JournalFilter{CorrelationID: correlationID})
}

func (j *Journal) Since(t time.Time) ([]Event, error) {
	return ReadJournal(j.path, JournalFilter{From: t})
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

func newScanner(f *os.File) *bufio.Scanner {
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return s
}

// JournalFilter selects events when reading a journal.
type JournalFilter struct {
	CorrelationID string    // empty = any
	From          time.Time // zero value = no lower bound
	To            time.Time // zero value = no upper bound
}

// ReadJournal decodes the events in a journal that match filter.
// Malformed lines are skipped; VerifyJournal reports them.
func ReadJournal(path string, filter JournalFilter) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	defer f.Close()

	var out []Event
	scanner := newScanner(f)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.CorrelationID != "" && entry.CorrelationID != filter.CorrelationID {
			continue
		}
		e, err := Decode(entry.Event)
		if err != nil {
			continue
		}
		ts := e.Meta().Timestamp
		if !filter.From.IsZero() && ts.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && ts.After(filter.To) {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read journal: %w", err)
	}
	return out, nil
}

// VerifyResult holds the outcome of a journal verification.
type VerifyResult struct {
	Valid     bool     `json:"valid"`
	Lines     int      `json:"lines"`
	Tampered  []string `json:"tampered_events,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorLine int      `json:"error_line,omitempty"`
}

// VerifyJournal validates the line hash chain and each event's own
// integrity hash. A broken chain stops at the first bad link; tampered
// event hashes are collected and reported together.
func VerifyJournal(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	var tampered []string
	scanner := newScanner(f)
	lineNum := 0
	var prevLine []byte

	for scanner.Scan() {
		lineNum++
		line := append([]byte(nil), scanner.Bytes()...)

		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}

		expected := GenesisHash
		if lineNum > 1 {
			expected = HashLine(prevLine)
		}
		if entry.PrevHash != expected {
			if lineNum == 1 {
				return VerifyResult{
					Error:     fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash),
					ErrorLine: 1,
				}
			}
			return VerifyResult{
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash),
				ErrorLine: lineNum,
			}
		}

		e, err := Decode(entry.Event)
		if err != nil {
			return VerifyResult{Error: err.Error(), ErrorLine: lineNum}
		}
		if !Verify(e) {
			tampered = append(tampered, e.Meta().ID)
		}
		prevLine = line
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	if len(tampered) > 0 {
		return VerifyResult{Lines: lineNum, Tampered: tampered, Error: fmt.Sprintf("%d event(s) failed integrity check", len(tampered))}
	}
	return VerifyResult{Valid: true, Lines: lineNum}
}
