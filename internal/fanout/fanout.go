// Package fanout is the cross-instance event bus. Every room broadcast and
// global broadcast is mirrored onto one shared channel so that members
// connected to other relay processes still receive it, and so that external
// producers with no socket connection can inject messages into the fleet.
//
// Delivery is best-effort and at-most-once per subscriber: no ack, no
// ordering across publishers, no replay for subscribers that were down.
package fanout

import (
	"context"
	"time"
)

// Envelope kinds.
const (
	KindRoomMessage = "room-message"
	KindBroadcast   = "broadcast"
)

// Envelope is the unit published on the shared channel. Origin names the
// publishing process; subscribers that also publish use it to skip their
// own envelopes after having delivered locally.
type Envelope struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	Message   string `json:"message"`
	From      string `json:"from,omitempty"`
	Origin    string `json:"origin"`
	Timestamp string `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time in the wire format
// the clients expect.
func NewEnvelope(kind, roomID, message, from, origin string) Envelope {
	return Envelope{
		Type:      kind,
		RoomID:    roomID,
		Message:   message,
		From:      from,
		Origin:    origin,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Bus is the one-way publish/subscribe abstraction. Subscribe blocks until
// the context is cancelled, invoking handler for every envelope received,
// including the subscriber's own publications.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler func(Envelope)) error
	Close() error
}
