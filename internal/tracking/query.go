package tracking

import (
	"encoding/json"

	"github.com/ignite/engagement-tracker/internal/eventlog"
)

// DefaultLatestN is how many records Latest returns when the caller does
// not say.
const DefaultLatestN = 200

// Query is the read-side facade over both logs: flat filtered projections
// only, no joins. Records are returned as the raw stored JSON so queries
// surface exactly what was logged.
type Query struct {
	events   *eventlog.Store
	imgReads *eventlog.Store
}

// NewQuery creates a Query over the primary and image-read logs.
func NewQuery(events, imgReads *eventlog.Store) *Query {
	return &Query{events: events, imgReads: imgReads}
}

// EmailActivity partitions a recipient's history: opens and clicks from
// the primary log, image reads from the secondary log, all in append order.
type EmailActivity struct {
	Opens    []json.RawMessage `json:"opens"`
	Clicks   []json.RawMessage `json:"clicks"`
	ImgReads []json.RawMessage `json:"img_reads"`
}

// ByEmail returns three independent filtered projections for one recipient.
func (q *Query) ByEmail(email string) (*EmailActivity, error) {
	out := &EmailActivity{
		Opens:    []json.RawMessage{},
		Clicks:   []json.RawMessage{},
		ImgReads: []json.RawMessage{},
	}

	events, err := q.events.ReadAll()
	if err != nil {
		return nil, err
	}
	for _, raw := range events {
		var e Event
		if json.Unmarshal(raw, &e) != nil || e.Email != email {
			continue
		}
		switch e.Type {
		case EventPixelOpen:
			out.Opens = append(out.Opens, raw)
		case EventClick:
			out.Clicks = append(out.Clicks, raw)
		}
	}

	reads, err := q.imgReads.ReadAll()
	if err != nil {
		return nil, err
	}
	for _, raw := range reads {
		var e ImageReadEvent
		if json.Unmarshal(raw, &e) != nil || e.Email != email {
			continue
		}
		out.ImgReads = append(out.ImgReads, raw)
	}

	return out, nil
}

// LatestActivity holds the newest records of both logs, newest first.
type LatestActivity struct {
	Events   []json.RawMessage `json:"events"`
	ImgReads []json.RawMessage `json:"img_reads"`
}

// Latest returns the n most recently appended records from each log in
// reverse-append order. n <= 0 selects DefaultLatestN; there is no upper
// bound.
func (q *Query) Latest(n int) (*LatestActivity, error) {
	if n <= 0 {
		n = DefaultLatestN
	}

	events, err := tail(q.events, n)
	if err != nil {
		return nil, err
	}
	reads, err := tail(q.imgReads, n)
	if err != nil {
		return nil, err
	}
	return &LatestActivity{Events: events, ImgReads: reads}, nil
}

func tail(store *eventlog.Store, n int) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, n)
	err := store.ReverseScan(func(line []byte) bool {
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		out = append(out, raw)
		return len(out) < n
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
