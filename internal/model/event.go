package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// EventKind identifies the kind of change event on the country channel.
type EventKind string

const (
	EventCountryAdded EventKind = "country_added"
)

// ChangeEvent is the ephemeral message published after a manual add.
// It is never persisted.
type ChangeEvent struct {
	Kind       EventKind `json:"event"`
	RecordID   string    `json:"id"`
	RecordName string    `json:"name"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// NewCountryAdded builds the event for a freshly added record.
func NewCountryAdded(c *Country, now time.Time) ChangeEvent {
	return ChangeEvent{
		Kind:       EventCountryAdded,
		RecordID:   c.ID,
		RecordName: c.DisplayName(),
		EmittedAt:  now.UTC(),
	}
}

// Encode serializes the event as the channel message body.
func (e ChangeEvent) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, eris.Wrap(err, "event: encode")
	}
	return b, nil
}

// DecodeChangeEvent parses a channel message body. Messages from older
// publishers without emitted_at decode with a zero EmittedAt.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, eris.Wrap(err, "event: decode")
	}
	if e.Kind == "" {
		return ChangeEvent{}, eris.New("event: missing event kind")
	}
	return e, nil
}
