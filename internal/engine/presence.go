package engine

import (
	"sort"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

// presenceTracker maintains the online roster for one channel session. A
// periodic full snapshot is the self-healing baseline; incremental events
// update the roster between polls, so any missed join or leave is corrected
// within one poll interval.
type presenceTracker struct {
	roster map[string]models.PresenceEntry
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{roster: make(map[string]models.PresenceEntry)}
}

// applySnapshot rebuilds the roster from a full occupant snapshot. Display
// fields already known for an occupant are preserved when the snapshot lacks
// state for them.
func (p *presenceTracker) applySnapshot(occupants []backend.Occupant) {
	next := make(map[string]models.PresenceEntry, len(occupants))
	for _, occ := range occupants {
		entry := models.PresenceEntry{UserID: occ.UserID}
		if occ.State != nil {
			entry.Name = occ.State.Name
			entry.Avatar = occ.State.Avatar
		}
		if prev, ok := p.roster[occ.UserID]; ok {
			if entry.Name == "" {
				entry.Name = prev.Name
			}
			if entry.Avatar == "" {
				entry.Avatar = prev.Avatar
			}
		}
		if entry.Name == "" {
			entry.Name = fallbackName(occ.UserID)
		}
		next[occ.UserID] = entry
	}
	p.roster = next
}

// applyEvent folds one incremental presence event into the roster and
// reports whether it changed. Join and state-change upsert, preserving known
// display fields missing from the partial state; leave and timeout delete.
func (p *presenceTracker) applyEvent(ev backend.PresenceEvent) bool {
	switch ev.Action {
	case backend.PresenceJoin, backend.PresenceStateChange:
		entry := models.PresenceEntry{UserID: ev.UserID}
		if ev.State != nil {
			entry.Name = ev.State.Name
			entry.Avatar = ev.State.Avatar
		}
		if prev, ok := p.roster[ev.UserID]; ok {
			if entry.Name == "" {
				entry.Name = prev.Name
			}
			if entry.Avatar == "" {
				entry.Avatar = prev.Avatar
			}
		}
		if entry.Name == "" {
			entry.Name = fallbackName(ev.UserID)
		}
		p.roster[ev.UserID] = entry
		return true
	case backend.PresenceLeave, backend.PresenceTimeout:
		if _, ok := p.roster[ev.UserID]; !ok {
			return false
		}
		delete(p.roster, ev.UserID)
		return true
	}
	return false
}

// snapshot returns the roster sorted by display name, then user id.
func (p *presenceTracker) snapshot() []models.PresenceEntry {
	out := make([]models.PresenceEntry, 0, len(p.roster))
	for _, entry := range p.roster {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func fallbackName(userID string) string {
	if len(userID) > 4 {
		return "User " + userID[:4]
	}
	return "User " + userID
}
