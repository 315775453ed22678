package models

import "time"

// PresenceState is the display state a client attaches to its presence,
// broadcast on activation and re-asserted after reconnects.
type PresenceState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// PresenceEntry is one occupant in the online roster, keyed by user id.
type PresenceEntry struct {
	UserID string
	Name   string
	Avatar string
}

// TypingEntry records a peer that is currently typing. Entries are removed on
// an explicit stop signal; there is no TTL fallback, so an abrupt peer
// disconnect can leave an entry behind (known gap, kept to match observed
// backend client behavior).
type TypingEntry struct {
	UserID  string
	Name    string
	ArmedAt time.Time
}
