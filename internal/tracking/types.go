// Package tracking holds the engagement event model, the open-dedup
// recorder and the read-side query facade over the event logs.
package tracking

import "time"

type EventType string

const (
	EventPixelOpen EventType = "pixel_open"
	EventClick     EventType = "click"
)

// Event is one engagement record in the primary log. Email is the tracked
// recipient identity (never validated as a real address); MessageID
// correlates the event to a specific sent message and is empty for
// unscoped events. Time is stamped by the store at append when absent.
type Event struct {
	EventID    string    `json:"event_id,omitempty"`
	Type       EventType `json:"type"`
	Email      string    `json:"email"`
	MessageID  string    `json:"message_id,omitempty"`
	ImageParam string    `json:"image_param,omitempty"`
	Redirect   string    `json:"redirect,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Time       string    `json:"time,omitempty"`
}

// ServedVia says where an image reference was resolved from.
type ServedVia string

const (
	ServedLocal  ServedVia = "local"
	ServedRemote ServedVia = "remote"
)

// ImageReadEvent is one record in the secondary (image-read) log: the
// outcome of a single image resolution attempt, success or failure.
type ImageReadEvent struct {
	EventID   string    `json:"event_id,omitempty"`
	Email     string    `json:"email"`
	MessageID string    `json:"message_id,omitempty"`
	Served    ServedVia `json:"served"`
	Filename  string    `json:"filename,omitempty"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      string    `json:"time,omitempty"`
}

// ParseEventTime parses a stored event timestamp. Accepts RFC3339 (with
// the Z suffix the store writes) and naive ISO-8601 timestamps, which are
// treated as UTC.
func ParseEventTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
