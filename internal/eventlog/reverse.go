package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// reverseChunkSize is how much of the file tail is read per ReadAt while
// scanning backwards.
const reverseChunkSize = 32 * 1024

// ReverseScan streams records newest-first without loading the log into
// memory. fn is called with each successfully parsed line; returning false
// stops the scan. Malformed lines are skipped. A missing log file is an
// empty scan, not an error.
//
// Dedup checks and latest-N queries both stop early, so the cost of a scan
// is bounded by how far back the caller needs to look, not by log size.
func (s *Store) ReverseScan(fn func(line []byte) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("eventlog: open %s: %w", s.path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("eventlog: stat %s: %w", s.path, err)
	}

	// carry holds the tail bytes of a line whose start lies in a chunk we
	// have not read yet.
	var carry []byte
	buf := make([]byte, reverseChunkSize)
	off := st.Size()

	for off > 0 {
		n := int64(len(buf))
		if off < n {
			n = off
		}
		off -= n
		if _, err := f.ReadAt(buf[:n], off); err != nil && err != io.EOF {
			return fmt.Errorf("eventlog: read %s: %w", s.path, err)
		}
		chunk := buf[:n]

		for len(chunk) > 0 {
			i := bytes.LastIndexByte(chunk, '\n')
			if i < 0 {
				// Line continues into the previous chunk.
				carry = append(append([]byte{}, chunk...), carry...)
				chunk = nil
				break
			}
			line := make([]byte, 0, len(chunk)-i-1+len(carry))
			line = append(line, chunk[i+1:]...)
			line = append(line, carry...)
			carry = nil
			chunk = chunk[:i]
			if stop := emitReverse(line, fn); stop {
				return nil
			}
		}
	}

	// First line of the file has no preceding newline.
	emitReverse(carry, fn)
	return nil
}

// emitReverse trims and validates one raw line and hands it to fn.
// Returns true when the scan should stop.
func emitReverse(line []byte, fn func(line []byte) bool) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !json.Valid(line) {
		return false
	}
	return !fn(line)
}
