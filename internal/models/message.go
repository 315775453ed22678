// Package models defines the domain types shared across the sync engine.
package models

import (
	"time"
)

// Token is a backend-assigned, strictly increasing ordering value in units of
// 100ns since the Unix epoch. Tokens order messages and act as pagination
// boundaries. Pending messages carry a synthetic token derived from the local
// clock in the same domain, so a single comparison orders both kinds.
type Token int64

// TokenAt converts a wall-clock time into the token domain.
func TokenAt(t time.Time) Token {
	return Token(t.UnixNano() / 100)
}

// Time converts a token back to wall-clock time.
func (t Token) Time() time.Time {
	return time.Unix(0, int64(t)*100)
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool {
	return t == 0
}

// MessageStatus is the lifecycle state of a message in the local view.
type MessageStatus string

const (
	// StatusPending means the message was sent optimistically and is awaiting
	// backend confirmation.
	StatusPending MessageStatus = "pending"

	// StatusConfirmed means the backend delivered the matching message event.
	StatusConfirmed MessageStatus = "confirmed"

	// StatusFailed means the publish failed. The message stays visible so the
	// user can retry or remove it; it is never silently dropped.
	StatusFailed MessageStatus = "failed"
)

// Sender identifies the author of a message as carried on the wire.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
}

// FileRef is an opaque reference to an uploaded file. Upload itself is a
// backend concern; the engine only passes references through.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ReactionEntry records one actor's reaction of a given value on a message.
type ReactionEntry struct {
	ActorID     string
	ActionToken Token
}

// Message is one entry in the local message list.
type Message struct {
	// Token is the backend-assigned ordering token once confirmed, or a
	// synthetic local-clock token while pending or failed.
	Token Token

	// ClientMessageID is the client-generated idempotency key that reconciles
	// an optimistic send with its confirmed event. Empty for messages that
	// originated elsewhere.
	ClientMessageID string

	Channel   string
	Sender    Sender
	Text      string
	File      *FileRef
	CreatedAt time.Time
	Status    MessageStatus

	// Reactions indexes reaction value -> entries, one entry per actor.
	Reactions map[string][]ReactionEntry
}

// Clone returns a deep copy safe to hand to the rendering layer.
func (m *Message) Clone() Message {
	out := *m
	if m.File != nil {
		f := *m.File
		out.File = &f
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string][]ReactionEntry, len(m.Reactions))
		for value, entries := range m.Reactions {
			out.Reactions[value] = append([]ReactionEntry(nil), entries...)
		}
	}
	return out
}

// MessagePayload is the wire shape published to the backend and delivered
// back in message events.
type MessagePayload struct {
	Text            string   `json:"text,omitempty"`
	Sender          Sender   `json:"sender"`
	Type            string   `json:"type"`
	CreatedAt       string   `json:"createdAt"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
	File            *FileRef `json:"file,omitempty"`
}
