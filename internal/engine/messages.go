package engine

import (
	"sort"
	"time"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

// messageStore is the authoritative in-memory message list for one channel
// session. It merges optimistic sends with backend-confirmed events and is
// the only writer of message state.
//
// Invariants: the list is sorted ascending by effective token; at most one
// entry exists per clientMessageId; at most one entry exists per confirmed
// token. Lookups go through secondary indexes instead of list scans.
type messageStore struct {
	channel    string
	list       []*models.Message
	byClientID map[string]*models.Message
	byToken    map[models.Token]*models.Message
}

func newMessageStore(channel string) *messageStore {
	return &messageStore{
		channel:    channel,
		byClientID: make(map[string]*models.Message),
		byToken:    make(map[models.Token]*models.Message),
	}
}

// appendPending adds an optimistic entry. Synthetic local-clock tokens are
// monotonically increasing and larger than any confirmed token, so appending
// keeps the list sorted.
func (s *messageStore) appendPending(msg models.Message) {
	m := msg
	s.list = append(s.list, &m)
	if m.ClientMessageID != "" {
		s.byClientID[m.ClientMessageID] = &m
	}
	s.resort()
}

// markFailed flips a pending entry to failed. The entry stays in the list for
// user-visible retry or removal; it is never silently dropped.
func (s *messageStore) markFailed(clientID string) bool {
	m, ok := s.byClientID[clientID]
	if !ok || m.Status != models.StatusPending {
		return false
	}
	m.Status = models.StatusFailed
	return true
}

// removeFailed drops a failed entry, on explicit user request only.
func (s *messageStore) removeFailed(clientID string) bool {
	m, ok := s.byClientID[clientID]
	if !ok || m.Status != models.StatusFailed {
		return false
	}
	delete(s.byClientID, clientID)
	for i, entry := range s.list {
		if entry == m {
			s.list = append(s.list[:i], s.list[i+1:]...)
			break
		}
	}
	return true
}

// applyInbound merges one delivered message event and reports whether the
// list changed. A matching pending entry is confirmed in place; an already
// known token is a redelivery and is discarded.
func (s *messageStore) applyInbound(ev backend.MessageEvent) bool {
	if _, dup := s.byToken[ev.Token]; dup {
		return false
	}

	if clientID := ev.Payload.ClientMessageID; clientID != "" {
		if m, ok := s.byClientID[clientID]; ok {
			if m.Status == models.StatusConfirmed {
				// Redelivery of an already reconciled send.
				return false
			}
			m.Token = ev.Token
			m.Status = models.StatusConfirmed
			m.Text = ev.Payload.Text
			m.Sender = ev.Payload.Sender
			if ev.File != nil {
				f := *ev.File
				m.File = &f
			}
			s.byToken[ev.Token] = m
			s.resort()
			return true
		}
	}

	m := messageFromEvent(ev)
	s.insert(m)
	return true
}

// mergePage folds a fetched history page into the store, deduplicating by
// token. Existing entries always win: anything already present arrived after
// the fetch began (an optimistic send or a live event) and is newer than the
// page, so a slow activation fetch can never clobber it.
func (s *messageStore) mergePage(page backend.HistoryPage) {
	for _, hm := range page.Messages {
		if _, dup := s.byToken[hm.Token]; dup {
			continue
		}
		s.insert(messageFromHistory(hm, s.channel))
	}
}

// applyActionAdded upserts one reaction entry, idempotent by action token to
// tolerate at-least-once delivery.
func (s *messageStore) applyActionAdded(ev backend.ActionEvent) bool {
	if ev.Kind != "reaction" {
		return false
	}
	m, ok := s.byToken[ev.MessageToken]
	if !ok {
		return false
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]models.ReactionEntry)
	}
	for _, entry := range m.Reactions[ev.Value] {
		if entry.ActionToken == ev.ActionToken {
			return false
		}
	}
	m.Reactions[ev.Value] = append(m.Reactions[ev.Value], models.ReactionEntry{
		ActorID:     ev.ActorID,
		ActionToken: ev.ActionToken,
	})
	return true
}

// applyActionRemoved deletes the matching (value, actor, actionToken) tuple.
func (s *messageStore) applyActionRemoved(ev backend.ActionEvent) bool {
	m, ok := s.byToken[ev.MessageToken]
	if !ok || m.Reactions == nil {
		return false
	}
	entries := m.Reactions[ev.Value]
	for i, entry := range entries {
		if entry.ActionToken == ev.ActionToken && entry.ActorID == ev.ActorID {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(m.Reactions, ev.Value)
			} else {
				m.Reactions[ev.Value] = entries
			}
			return true
		}
	}
	return false
}

// findOwnAction resolves the action token of actorID's reaction of the given
// value on a message, needed to issue a remove.
func (s *messageStore) findOwnAction(message models.Token, value, actorID string) (models.Token, bool) {
	m, ok := s.byToken[message]
	if !ok || m.Reactions == nil {
		return 0, false
	}
	for _, entry := range m.Reactions[value] {
		if entry.ActorID == actorID {
			return entry.ActionToken, true
		}
	}
	return 0, false
}

// newestConfirmedToken returns the newest backend-assigned token, used as the
// read-receipt cursor. Synthetic pending tokens are skipped.
func (s *messageStore) newestConfirmedToken() models.Token {
	for i := len(s.list) - 1; i >= 0; i-- {
		if s.list[i].Status == models.StatusConfirmed {
			return s.list[i].Token
		}
	}
	return 0
}

// snapshot returns a deep copy of the list for the rendering layer.
func (s *messageStore) snapshot() []models.Message {
	out := make([]models.Message, 0, len(s.list))
	for _, m := range s.list {
		out = append(out, m.Clone())
	}
	return out
}

func (s *messageStore) insert(m models.Message) {
	entry := m
	s.list = append(s.list, &entry)
	if entry.ClientMessageID != "" {
		s.byClientID[entry.ClientMessageID] = &entry
	}
	if entry.Status == models.StatusConfirmed {
		s.byToken[entry.Token] = &entry
	}
	s.resort()
}

func (s *messageStore) resort() {
	sort.SliceStable(s.list, func(i, j int) bool {
		return s.list[i].Token < s.list[j].Token
	})
}

func messageFromEvent(ev backend.MessageEvent) models.Message {
	m := models.Message{
		Token:           ev.Token,
		ClientMessageID: ev.Payload.ClientMessageID,
		Channel:         ev.Channel,
		Sender:          ev.Payload.Sender,
		Text:            ev.Payload.Text,
		CreatedAt:       createdAt(ev.Payload.CreatedAt, ev.Token),
		Status:          models.StatusConfirmed,
	}
	if m.Sender.ID == "" {
		m.Sender.ID = ev.Publisher
	}
	if ev.File != nil {
		f := *ev.File
		m.File = &f
	}
	return m
}

func messageFromHistory(hm backend.HistoryMessage, channel string) models.Message {
	m := models.Message{
		Token:           hm.Token,
		ClientMessageID: hm.Payload.ClientMessageID,
		Channel:         channel,
		Sender:          hm.Payload.Sender,
		Text:            hm.Payload.Text,
		CreatedAt:       createdAt(hm.Payload.CreatedAt, hm.Token),
		Status:          models.StatusConfirmed,
	}
	if m.Sender.ID == "" {
		m.Sender.ID = hm.Publisher
	}
	if hm.File != nil {
		f := *hm.File
		m.File = &f
	}
	for _, a := range hm.Actions {
		if a.Kind != "reaction" {
			continue
		}
		if m.Reactions == nil {
			m.Reactions = make(map[string][]models.ReactionEntry)
		}
		m.Reactions[a.Value] = append(m.Reactions[a.Value], models.ReactionEntry{
			ActorID:     a.ActorID,
			ActionToken: a.ActionToken,
		})
	}
	return m
}

func createdAt(wire string, token models.Token) time.Time {
	if wire != "" {
		if t, err := time.Parse(time.RFC3339, wire); err == nil {
			return t
		}
	}
	return token.Time()
}
