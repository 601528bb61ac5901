// Package eventlog implements the append-only line-delimited JSON event
// store backing the tracker. Each record is one self-contained JSON line;
// the log only ever grows and records are immutable once written.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxLineSize bounds a single log line during forward scans. Tracking
// events are small; this is headroom for oversized user agents.
const maxLineSize = 1 << 20

// Store is an append-only JSONL log. Appends are serialized with a mutex
// and issued as a single O_APPEND write, so concurrent writers never
// interleave partial lines. Readers are not synchronized against writers:
// a scan may or may not observe an in-flight append.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store for the given log file. The file is created lazily
// on first append (or Ensure); a missing file reads as an empty log.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing log file path.
func (s *Store) Path() string {
	return s.path
}

// Ensure creates the log file (and its directory) if it does not exist yet.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Append serializes the record as one JSON line and appends it to the log.
// A "time" field (UTC, RFC3339 with trailing Z) and an "event_id" are
// stamped if the record lacks them. The write is a single write-and-close,
// so a crash mid-append never affects previously committed lines.
func (s *Store) Append(record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("eventlog: marshal record: %w", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("eventlog: record must be a JSON object: %w", err)
	}
	if t, ok := obj["time"].(string); !ok || t == "" {
		obj["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if id, ok := obj["event_id"].(string); !ok || id == "" {
		obj["event_id"] = uuid.NewString()
	}

	line, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("eventlog: marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", s.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("eventlog: append to %s: %w", s.path, err)
	}
	return f.Close()
}

// ReadAll returns every successfully parsed record in append order.
// Malformed lines are skipped, not errors; a log with mixed valid and
// invalid lines yields only the valid ones with relative order preserved.
func (s *Store) ReadAll() ([]json.RawMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("eventlog: open %s: %w", s.path, err)
	}
	defer f.Close()

	out := make([]json.RawMessage, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !json.Valid([]byte(line)) {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan %s: %w", s.path, err)
	}
	return out, nil
}

func (s *Store) ensureDir() error {
	dir := filepath.Dir(s.path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
