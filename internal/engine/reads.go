package engine

import (
	"time"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

// readTracker keeps per-user last-read cursors for one channel session.
// Inbound read signals overwrite unconditionally: last signal wins by arrival
// order. The local user's cursor is broadcast after a short settle delay once
// the view reaches the newest message.
type readTracker struct {
	cursors       map[string]models.Token
	lastBroadcast models.Token
	settle        *time.Timer
}

func newReadTracker() *readTracker {
	return &readTracker{cursors: make(map[string]models.Token)}
}

// applyInbound records a peer's read cursor and reports whether it changed.
func (r *readTracker) applyInbound(sig backend.ReadSignal) bool {
	if r.cursors[sig.UserID] == sig.ReadToken {
		return false
	}
	r.cursors[sig.UserID] = sig.ReadToken
	return true
}

// stopTimer disarms a pending settle broadcast.
func (r *readTracker) stopTimer() {
	if r.settle != nil {
		r.settle.Stop()
		r.settle = nil
	}
}

// snapshot returns a copy of the cursor map.
func (r *readTracker) snapshot() map[string]models.Token {
	out := make(map[string]models.Token, len(r.cursors))
	for id, token := range r.cursors {
		out[id] = token
	}
	return out
}
