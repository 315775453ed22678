package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaverhq/palaver/internal/logging"
	"github.com/palaverhq/palaver/internal/models"
)

const memoryEventBuffer = 256

// Memory is an in-process Backend for one client. It stores channel history,
// tracks occupants, and loops published messages back through the event
// stream, so the optimistic-send reconciliation path behaves exactly as it
// does against a remote backend. The demo CLI and the test suite both run on
// it; Inject* methods simulate traffic from other participants.
type Memory struct {
	userID string
	logger zerolog.Logger

	mu         sync.Mutex
	closed     bool
	events     chan Event
	subs       map[string]bool
	history    map[string][]HistoryMessage
	occupants  map[string]map[string]*models.PresenceState
	lastToken  models.Token
	publishErr error
	dropped    int
}

// NewMemory creates a Memory backend acting as userID.
func NewMemory(userID string) *Memory {
	return &Memory{
		userID:    userID,
		logger:    logging.Component("memory-backend"),
		events:    make(chan Event, memoryEventBuffer),
		subs:      make(map[string]bool),
		history:   make(map[string][]HistoryMessage),
		occupants: make(map[string]map[string]*models.PresenceState),
	}
}

// Subscribe implements Backend.
func (m *Memory) Subscribe(ctx context.Context, channel string, withPresence bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.subs[channel] = withPresence
	if withPresence {
		if m.occupants[channel] == nil {
			m.occupants[channel] = make(map[string]*models.PresenceState)
		}
		if _, ok := m.occupants[channel][m.userID]; !ok {
			m.occupants[channel][m.userID] = nil
			m.emitLocked(PresenceEvent{Channel: channel, Action: PresenceJoin, UserID: m.userID})
		}
	}
	m.emitLocked(StatusEvent{Category: StatusConnected})
	return nil
}

// Unsubscribe implements Backend.
func (m *Memory) Unsubscribe(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	withPresence, ok := m.subs[channel]
	if !ok {
		return nil
	}
	delete(m.subs, channel)
	if withPresence && m.occupants[channel] != nil {
		delete(m.occupants[channel], m.userID)
	}
	return nil
}

// Publish implements Backend.
func (m *Memory) Publish(ctx context.Context, channel string, payload models.MessagePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.publishErr = nil
		return err
	}
	m.storeAndEmitLocked(channel, m.userID, payload)
	return nil
}

// Signal implements Backend. Signals are loopback-delivered like the real
// backend delivers them to every subscriber, publisher included.
func (m *Memory) Signal(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.subs[channel] {
		m.emitLocked(SignalEvent{Channel: channel, Publisher: m.userID, Payload: payload})
	}
	return nil
}

// FetchHistory implements Backend.
func (m *Memory) FetchHistory(ctx context.Context, channel string, count int, before models.Token) (HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return HistoryPage{}, ErrClosed
	}
	stored := m.history[channel]
	end := len(stored)
	if !before.IsZero() {
		end = sort.Search(len(stored), func(i int) bool { return stored[i].Token >= before })
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	page := HistoryPage{Messages: append([]HistoryMessage(nil), stored[start:end]...)}
	if len(page.Messages) > 0 {
		page.OldestToken = page.Messages[0].Token
	}
	return page, nil
}

// PresenceSnapshot implements Backend.
func (m *Memory) PresenceSnapshot(ctx context.Context, channel string) ([]Occupant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Occupant
	for id, state := range m.occupants[channel] {
		occ := Occupant{UserID: id}
		if state != nil {
			s := *state
			occ.State = &s
		}
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// SetPresenceState implements Backend.
func (m *Memory) SetPresenceState(ctx context.Context, channel string, state models.PresenceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.occupants[channel] == nil {
		m.occupants[channel] = make(map[string]*models.PresenceState)
	}
	s := state
	m.occupants[channel][m.userID] = &s
	if m.subs[channel] {
		m.emitLocked(PresenceEvent{Channel: channel, Action: PresenceStateChange, UserID: m.userID, State: &s})
	}
	return nil
}

// AddMessageAction implements Backend.
func (m *Memory) AddMessageAction(ctx context.Context, channel string, message models.Token, kind, value string) (models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	idx := m.findMessageLocked(channel, message)
	if idx < 0 {
		return 0, ErrNotSubscribed
	}
	token := m.nextTokenLocked()
	m.history[channel][idx].Actions = append(m.history[channel][idx].Actions, StoredAction{
		ActionToken: token,
		ActorID:     m.userID,
		Kind:        kind,
		Value:       value,
	})
	m.emitLocked(ActionEvent{
		Channel:      channel,
		Added:        true,
		MessageToken: message,
		ActionToken:  token,
		ActorID:      m.userID,
		Kind:         kind,
		Value:        value,
	})
	return token, nil
}

// RemoveMessageAction implements Backend.
func (m *Memory) RemoveMessageAction(ctx context.Context, channel string, message, action models.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	idx := m.findMessageLocked(channel, message)
	if idx < 0 {
		return ErrNotSubscribed
	}
	actions := m.history[channel][idx].Actions
	for i, a := range actions {
		if a.ActionToken == action {
			m.history[channel][idx].Actions = append(actions[:i], actions[i+1:]...)
			m.emitLocked(ActionEvent{
				Channel:      channel,
				Added:        false,
				MessageToken: message,
				ActionToken:  action,
				ActorID:      a.ActorID,
				Kind:         a.Kind,
				Value:        a.Value,
			})
			return nil
		}
	}
	return nil
}

// Events implements Backend.
func (m *Memory) Events() <-chan Event {
	return m.events
}

// Close implements Backend.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

// FailNextPublish makes the next Publish call return err.
func (m *Memory) FailNextPublish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// SeedHistory stores messages for a channel without emitting events,
// assigning ascending tokens. Returns the assigned tokens.
func (m *Memory) SeedHistory(channel string, publisher string, payloads ...models.MessagePayload) []models.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]models.Token, 0, len(payloads))
	for _, p := range payloads {
		token := m.nextTokenLocked()
		m.history[channel] = append(m.history[channel], HistoryMessage{Token: token, Publisher: publisher, Payload: p, File: p.File})
		tokens = append(tokens, token)
	}
	return tokens
}

// InjectMessage simulates a message published by another participant.
func (m *Memory) InjectMessage(channel, publisher string, payload models.MessagePayload) models.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeAndEmitLocked(channel, publisher, payload)
}

// InjectSignal simulates a signal broadcast by another participant.
func (m *Memory) InjectSignal(channel, publisher string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(SignalEvent{Channel: channel, Publisher: publisher, Payload: payload})
}

// InjectPresence simulates a presence change for another participant. The
// occupant map is kept consistent so later snapshots agree with the event.
func (m *Memory) InjectPresence(channel string, action PresenceAction, userID string, state *models.PresenceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupants[channel] == nil {
		m.occupants[channel] = make(map[string]*models.PresenceState)
	}
	switch action {
	case PresenceJoin, PresenceStateChange:
		m.occupants[channel][userID] = state
	case PresenceLeave, PresenceTimeout:
		delete(m.occupants[channel], userID)
	}
	m.emitLocked(PresenceEvent{Channel: channel, Action: action, UserID: userID, State: state})
}

// InjectStatus simulates a connection status change.
func (m *Memory) InjectStatus(category StatusCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(StatusEvent{Category: category})
}

// InjectActionEvent replays a raw action event, used to simulate
// at-least-once redelivery.
func (m *Memory) InjectActionEvent(ev ActionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(ev)
}

func (m *Memory) storeAndEmitLocked(channel, publisher string, payload models.MessagePayload) models.Token {
	token := m.nextTokenLocked()
	stored := HistoryMessage{Token: token, Publisher: publisher, Payload: payload, File: payload.File}
	m.history[channel] = append(m.history[channel], stored)
	if _, ok := m.subs[channel]; ok {
		m.emitLocked(MessageEvent{
			Channel:   channel,
			Token:     token,
			Publisher: publisher,
			Payload:   payload,
			File:      payload.File,
		})
	}
	return token
}

func (m *Memory) findMessageLocked(channel string, token models.Token) int {
	stored := m.history[channel]
	for i := range stored {
		if stored[i].Token == token {
			return i
		}
	}
	return -1
}

func (m *Memory) nextTokenLocked() models.Token {
	token := models.TokenAt(time.Now())
	if token <= m.lastToken {
		token = m.lastToken + 1
	}
	m.lastToken = token
	return token
}

func (m *Memory) emitLocked(ev Event) {
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.dropped++
		m.logger.Warn().Int("dropped", m.dropped).Msg("event buffer full, dropping event")
	}
}
