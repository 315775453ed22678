package engine

import (
	"sort"
	"time"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

// typingCoordinator tracks the inbound typing set and the outbound signaling
// state for one channel session. Outbound: the first keystroke broadcasts
// typing=true and arms a single inactivity timer; further keystrokes reset
// it; expiry or send broadcasts typing=false.
//
// Inbound entries are removed only by an explicit stop signal. There is no
// TTL fallback, so a peer that disconnects abruptly can leave a stuck
// indicator; kept to match observed client behavior rather than silently
// fixed.
type typingCoordinator struct {
	signaling bool
	timer     *time.Timer
	inbound   map[string]models.TypingEntry
}

func newTypingCoordinator() *typingCoordinator {
	return &typingCoordinator{inbound: make(map[string]models.TypingEntry)}
}

// applyInbound folds one typing signal into the inbound set and reports
// whether it changed.
func (t *typingCoordinator) applyInbound(sig backend.TypingSignal, now time.Time) bool {
	if sig.Typing {
		if _, ok := t.inbound[sig.UserID]; ok {
			return false
		}
		name := sig.Name
		if name == "" {
			name = fallbackName(sig.UserID)
		}
		t.inbound[sig.UserID] = models.TypingEntry{UserID: sig.UserID, Name: name, ArmedAt: now}
		return true
	}
	if _, ok := t.inbound[sig.UserID]; !ok {
		return false
	}
	delete(t.inbound, sig.UserID)
	return true
}

// stopTimer disarms the outbound inactivity timer.
func (t *typingCoordinator) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// snapshot returns typing peers ordered by when they started.
func (t *typingCoordinator) snapshot() []models.TypingEntry {
	out := make([]models.TypingEntry, 0, len(t.inbound))
	for _, entry := range t.inbound {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ArmedAt.Equal(out[j].ArmedAt) {
			return out[i].ArmedAt.Before(out[j].ArmedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
