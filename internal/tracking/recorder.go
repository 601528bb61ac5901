package tracking

import (
	"encoding/json"
	"time"

	"github.com/ignite/engagement-tracker/internal/eventlog"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// DefaultDedupWindow is how long repeated opens for the same
// (email, message_id) pair are collapsed into one logged event.
const DefaultDedupWindow = 10 * time.Minute

// Recorder writes engagement events to the primary log, suppressing
// repeat opens inside the dedup window.
type Recorder struct {
	events *eventlog.Store
	window time.Duration
	now    func() time.Time
}

// NewRecorder creates a Recorder over the primary event log. window <= 0
// selects DefaultDedupWindow.
func NewRecorder(events *eventlog.Store, window time.Duration) *Recorder {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Recorder{events: events, window: window, now: time.Now}
}

// RecordOpen appends a pixel_open event unless an equivalent one was
// logged within the dedup window. Returns whether the event was appended.
//
// The window check and the append are not locked against each other, so
// two concurrent opens for the same identity can both pass the check and
// both be logged. This is accepted: the dedup is an
// at-most-approximately-once heuristic, not an idempotency guarantee.
func (r *Recorder) RecordOpen(evt Event) (bool, error) {
	evt.Type = EventPixelOpen
	if r.alreadyOpenedRecently(evt.Email, evt.MessageID) {
		logger.Debug("open suppressed by dedup window",
			"email", evt.Email,
			"message_id", evt.MessageID,
		)
		return false, nil
	}
	if err := r.events.Append(evt); err != nil {
		return false, err
	}
	return true, nil
}

// RecordClick appends a click event. Clicks are never deduplicated.
func (r *Recorder) RecordClick(evt Event) error {
	evt.Type = EventClick
	return r.events.Append(evt)
}

// alreadyOpenedRecently reports whether a pixel_open for the same email
// and message_id was logged within the window. It scans the log newest
// first and stops at the first match, or at the first event older than
// the window: append order is time-ordered, so nothing beyond that point
// can still be inside the window. Events with unparsable timestamps are
// skipped, never treated as matches.
func (r *Recorder) alreadyOpenedRecently(email, messageID string) bool {
	cutoff := r.now().UTC().Add(-r.window)

	suppress := false
	err := r.events.ReverseScan(func(line []byte) bool {
		var e Event
		if json.Unmarshal(line, &e) != nil {
			return true
		}
		t, terr := ParseEventTime(e.Time)
		if terr != nil {
			return true
		}
		if t.Before(cutoff) {
			return false
		}
		if e.Type == EventPixelOpen && e.Email == email && e.MessageID == messageID {
			suppress = true
			return false
		}
		return true
	})
	if err != nil {
		logger.Error("dedup scan failed", "error", err.Error())
		return false
	}
	return suppress
}
