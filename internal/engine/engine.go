// Package engine implements the client-side realtime conversation sync
// engine: it keeps a local view of one active channel's messages, presence
// roster, typing indicators, reactions, and read cursors consistent with the
// realtime backend, despite out-of-order delivery, redelivery, reconnects,
// and optimistic local sends.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/events"
	"github.com/palaverhq/palaver/internal/logging"
	"github.com/palaverhq/palaver/internal/models"
)

// Config tunes the sync engine.
type Config struct {
	// PageSize is how many messages each history fetch requests.
	// Default: 20
	PageSize int

	// PresencePollInterval is the cadence of the self-healing roster
	// snapshot. Default: 10s
	PresencePollInterval time.Duration

	// TypingIdleTimeout is how long after the last keystroke the outbound
	// typing indicator is withdrawn. Default: 2s
	TypingIdleTimeout time.Duration

	// ReadSettleDelay coalesces read-receipt broadcasts. Default: 500ms
	ReadSettleDelay time.Duration

	// PresenceStateRetryBase is the initial backoff for presence state
	// broadcast retries. Default: 1s
	PresenceStateRetryBase time.Duration

	// PresenceStateRetryMax caps presence state broadcast retries.
	// Default: 5
	PresenceStateRetryMax int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:               20,
		PresencePollInterval:   10 * time.Second,
		TypingIdleTimeout:      2 * time.Second,
		ReadSettleDelay:        500 * time.Millisecond,
		PresenceStateRetryBase: time.Second,
		PresenceStateRetryMax:  5,
	}
}

// Engine owns the sync state for at most one active channel and exposes the
// reactive read model plus the imperative command surface.
//
// Inbound backend events are processed one at a time by Run. Commands and
// async completions mutate under the engine mutex; completions carry the
// session epoch they started under and are discarded when stale.
type Engine struct {
	cfg      Config
	backend  backend.Backend
	self     models.Sender
	logger   zerolog.Logger
	notifier *events.Notifier

	mu      sync.Mutex
	running bool
	epoch   uint64
	conn    *connectionMonitor
	session *session
}

// New creates an Engine for the given backend and local user identity.
func New(cfg Config, b backend.Backend, self models.Sender) *Engine {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.PresencePollInterval <= 0 {
		cfg.PresencePollInterval = def.PresencePollInterval
	}
	if cfg.TypingIdleTimeout <= 0 {
		cfg.TypingIdleTimeout = def.TypingIdleTimeout
	}
	if cfg.ReadSettleDelay < 0 {
		cfg.ReadSettleDelay = def.ReadSettleDelay
	}
	if cfg.PresenceStateRetryBase <= 0 {
		cfg.PresenceStateRetryBase = def.PresenceStateRetryBase
	}
	if cfg.PresenceStateRetryMax <= 0 {
		cfg.PresenceStateRetryMax = def.PresenceStateRetryMax
	}

	return &Engine{
		cfg:      cfg,
		backend:  b,
		self:     self,
		logger:   logging.Component("sync-engine"),
		notifier: events.NewNotifier(),
		conn:     newConnectionMonitor(),
	}
}

// Notifier exposes read-model change notifications for the rendering layer.
func (e *Engine) Notifier() *events.Notifier {
	return e.notifier
}

// Run drains the backend event stream until ctx is cancelled or the stream
// closes. Events are handled strictly in arrival order.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-e.backend.Events():
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		}
	}
}

// Activate switches the active channel. Any previous session is fully torn
// down first: subscription dropped, in-flight fetches cancelled, timers
// disarmed, state discarded. A no-op when the channel is already active.
func (e *Engine) Activate(channelID string) error {
	e.mu.Lock()
	if e.session != nil && e.session.channel == channelID {
		e.mu.Unlock()
		return nil
	}
	old := e.session
	if old != nil {
		old.teardown()
	}
	e.conn.reset()
	e.epoch++
	s := newSession(context.Background(), channelID, e.epoch, e.cfg.PageSize)
	e.session = s
	e.conn.connecting()
	e.mu.Unlock()

	if old != nil {
		if err := e.backend.Unsubscribe(old.channel); err != nil {
			e.logger.Debug().Err(err).Str("channel", old.channel).Msg("unsubscribe failed")
		}
	}

	if err := e.backend.Subscribe(s.ctx, channelID, true); err != nil {
		if backend.IsAccessDenied(err) {
			e.mu.Lock()
			e.conn.apply(backend.StatusAccessDenied)
			e.mu.Unlock()
			e.notify(events.ChangeConnection, channelID)
			return err
		}
		// Transient subscribe failure: the backend reconnects on its own.
		e.logger.Warn().Err(err).Str("channel", channelID).Msg("subscribe failed, awaiting reconnect")
	}

	go e.initialLoad(s)
	go e.presenceLoop(s)
	go e.assertPresenceState(s)

	e.notify(events.ChangeSession, channelID)
	return nil
}

// Deactivate tears down the active session, if any.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return
	}
	s.teardown()
	e.session = nil
	e.conn.reset()
	e.mu.Unlock()

	if err := e.backend.Unsubscribe(s.channel); err != nil {
		e.logger.Debug().Err(err).Str("channel", s.channel).Msg("unsubscribe failed")
	}
	e.notify(events.ChangeSession, "")
}

// SendMessage appends an optimistic pending entry and publishes it. The
// returned clientMessageId reconciles the entry with its confirmed event; on
// publish failure the entry flips to failed and stays visible.
func (e *Engine) SendMessage(text string, file *models.FileRef) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" && file == nil {
		return "", ErrEmptyMessage
	}

	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return "", ErrNoActiveChannel
	}

	clientID := uuid.NewString()
	now := time.Now()
	msg := models.Message{
		Token:           models.TokenAt(now),
		ClientMessageID: clientID,
		Channel:         s.channel,
		Sender:          e.self,
		Text:            text,
		CreatedAt:       now,
		Status:          models.StatusPending,
	}
	msgType := "text"
	if file != nil {
		f := *file
		msg.File = &f
		msgType = "image"
	}
	s.store.appendPending(msg)

	payload := models.MessagePayload{
		Text:            text,
		Sender:          e.self,
		Type:            msgType,
		CreatedAt:       now.UTC().Format(time.RFC3339),
		ClientMessageID: clientID,
		File:            msg.File,
	}
	epoch, ctx, channel := s.epoch, s.ctx, s.channel
	e.mu.Unlock()

	e.notify(events.ChangeMessages, channel)

	go func() {
		if err := e.backend.Publish(ctx, channel, payload); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.logger.Error().Err(err).Str("client_message_id", clientID).Msg("publish failed")
			if e.withSession(epoch, func(sess *session) bool {
				return sess.store.markFailed(clientID)
			}) {
				e.notify(events.ChangeMessages, channel)
			}
		}
	}()

	// Sending implies the user stopped typing.
	e.SetTyping(false)
	return clientID, nil
}

// RemoveFailedMessage drops a failed optimistic entry on user request.
func (e *Engine) RemoveFailedMessage(clientID string) error {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveChannel
	}
	removed := s.store.removeFailed(clientID)
	channel := s.channel
	e.mu.Unlock()

	if removed {
		e.notify(events.ChangeMessages, channel)
	}
	return nil
}

// FetchMoreHistory loads the next older page. A no-op when there is nothing
// more to load or a pagination fetch is already in flight.
func (e *Engine) FetchMoreHistory() error {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveChannel
	}
	before, ok := s.pager.beginFetch()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	epoch, ctx, channel := s.epoch, s.ctx, s.channel
	e.mu.Unlock()

	e.notify(events.ChangeMessages, channel)

	go func() {
		page, err := e.backend.FetchHistory(ctx, channel, e.cfg.PageSize, before)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Str("channel", channel).Msg("history pagination failed")
		}
		if e.withSession(epoch, func(sess *session) bool {
			if err != nil {
				sess.pager.completeFetch(0, 0, err)
				return true
			}
			sess.store.mergePage(page)
			sess.pager.completeFetch(len(page.Messages), page.OldestToken, nil)
			return true
		}) {
			e.notify(events.ChangeMessages, channel)
		}
	}()
	return nil
}

// AddReaction issues a reaction add for a message. The ledger updates when
// the action-added event comes back; failures are logged, never surfaced.
func (e *Engine) AddReaction(message models.Token, value string) error {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveChannel
	}
	ctx, channel := s.ctx, s.channel
	e.mu.Unlock()

	go func() {
		if _, err := e.backend.AddMessageAction(ctx, channel, message, "reaction", value); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.logger.Warn().Err(err).Str("value", value).Msg("reaction add failed")
		}
	}()
	return nil
}

// RemoveReaction removes the local user's reaction of the given value. The
// action token is resolved from the ledger; without one there is nothing to
// remove.
func (e *Engine) RemoveReaction(message models.Token, value string) error {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveChannel
	}
	actionToken, ok := s.store.findOwnAction(message, value, e.self.ID)
	if !ok {
		e.mu.Unlock()
		return ErrReactionNotFound
	}
	ctx, channel := s.ctx, s.channel
	e.mu.Unlock()

	go func() {
		if err := e.backend.RemoveMessageAction(ctx, channel, message, actionToken); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.logger.Warn().Err(err).Str("value", value).Msg("reaction remove failed")
		}
	}()
	return nil
}

// SetTyping drives the outbound typing indicator. The first active call
// broadcasts typing=true and arms the inactivity timer; further active calls
// reset the timer; an inactive call (or timer expiry, or send) broadcasts
// typing=false.
func (e *Engine) SetTyping(active bool) {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return
	}

	broadcast := false
	var value bool
	if active {
		if !s.typing.signaling {
			s.typing.signaling = true
			broadcast, value = true, true
		}
		s.typing.stopTimer()
		epoch := s.epoch
		s.typing.timer = time.AfterFunc(e.cfg.TypingIdleTimeout, func() {
			e.typingExpired(epoch)
		})
	} else {
		if s.typing.signaling {
			s.typing.signaling = false
			broadcast, value = true, false
		}
		s.typing.stopTimer()
	}
	ctx, channel := s.ctx, s.channel
	e.mu.Unlock()

	if broadcast {
		e.sendTypingSignal(ctx, channel, value)
	}
}

// typingExpired fires when the inactivity timer lapses without further input.
func (e *Engine) typingExpired(epoch uint64) {
	var ctx context.Context
	var channel string
	expired := e.withSession(epoch, func(sess *session) bool {
		if !sess.typing.signaling {
			return false
		}
		sess.typing.signaling = false
		sess.typing.timer = nil
		ctx, channel = sess.ctx, sess.channel
		return true
	})
	if expired {
		e.sendTypingSignal(ctx, channel, false)
	}
}

// MarkRead schedules a read-receipt broadcast for the newest known message,
// after the settle delay. Repeated calls within the delay coalesce.
func (e *Engine) MarkRead() {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return
	}
	s.reads.stopTimer()
	epoch := s.epoch
	s.reads.settle = time.AfterFunc(e.cfg.ReadSettleDelay, func() {
		e.broadcastRead(epoch)
	})
	e.mu.Unlock()
}

func (e *Engine) broadcastRead(epoch uint64) {
	var ctx context.Context
	var channel string
	var token models.Token
	due := e.withSession(epoch, func(sess *session) bool {
		sess.reads.settle = nil
		newest := sess.store.newestConfirmedToken()
		if newest.IsZero() || newest == sess.reads.lastBroadcast {
			return false
		}
		sess.reads.lastBroadcast = newest
		ctx, channel, token = sess.ctx, sess.channel, newest
		return true
	})
	if !due {
		return
	}

	payload, err := backend.EncodeReadSignal(backend.ReadSignal{UserID: e.self.ID, ReadToken: token})
	if err != nil {
		e.logger.Error().Err(err).Msg("encode read signal")
		return
	}
	go func() {
		if err := e.backend.Signal(ctx, channel, payload); err != nil && !errors.Is(err, context.Canceled) {
			// Signals are fire-and-forget; peers converge on the next one.
			e.logger.Debug().Err(err).Msg("read signal failed")
		}
	}()
}

// initialLoad runs the activation fetches: most recent history page, then
// the first presence snapshot.
func (e *Engine) initialLoad(s *session) {
	page, err := e.backend.FetchHistory(s.ctx, s.channel, e.cfg.PageSize, 0)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Str("channel", s.channel).Msg("initial history fetch failed")
		}
	} else if e.withSession(s.epoch, func(sess *session) bool {
		sess.store.mergePage(page)
		sess.pager.applyInitial(len(page.Messages), page.OldestToken)
		return true
	}) {
		e.notify(events.ChangeMessages, s.channel)
	}

	occupants, err := e.backend.PresenceSnapshot(s.ctx, s.channel)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Str("channel", s.channel).Msg("initial presence snapshot failed")
		}
		return
	}
	if e.withSession(s.epoch, func(sess *session) bool {
		sess.presence.applySnapshot(occupants)
		return true
	}) {
		e.notify(events.ChangePresence, s.channel)
	}
}

// presenceLoop refetches the full roster on a fixed interval so any missed
// incremental event is corrected within one interval.
func (e *Engine) presenceLoop(s *session) {
	ticker := time.NewTicker(e.cfg.PresencePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		occupants, err := e.backend.PresenceSnapshot(s.ctx, s.channel)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				e.logger.Debug().Err(err).Str("channel", s.channel).Msg("presence poll failed")
			}
			continue
		}
		if e.withSession(s.epoch, func(sess *session) bool {
			sess.presence.applySnapshot(occupants)
			return true
		}) {
			e.notify(events.ChangePresence, s.channel)
		}
	}
}

// assertPresenceState broadcasts the local user's display state, retrying
// with backoff. Failures are never surfaced to the user.
func (e *Engine) assertPresenceState(s *session) {
	state := models.PresenceState{ID: e.self.ID, Name: e.self.Name, Avatar: e.self.Avatar}
	delay := e.cfg.PresenceStateRetryBase

	for attempt := 0; attempt < e.cfg.PresenceStateRetryMax; attempt++ {
		err := e.backend.SetPresenceState(s.ctx, s.channel, state)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("presence state broadcast failed")

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
			delay *= 2
		}
	}
	e.logger.Warn().Str("channel", s.channel).Msg("presence state broadcast gave up")
}

// handleEvent dispatches one inbound backend event. The union is sealed;
// every variant is handled.
func (e *Engine) handleEvent(ev backend.Event) {
	switch ev := ev.(type) {
	case backend.MessageEvent:
		e.handleMessage(ev)
	case backend.PresenceEvent:
		e.handlePresence(ev)
	case backend.SignalEvent:
		e.handleSignal(ev)
	case backend.ActionEvent:
		e.handleAction(ev)
	case backend.StatusEvent:
		e.handleStatus(ev)
	default:
		e.logger.Error().Str("channel", ev.EventChannel()).Msg("unhandled backend event variant")
	}
}

func (e *Engine) handleMessage(ev backend.MessageEvent) {
	e.mu.Lock()
	s := e.session
	if s == nil || ev.Channel != s.channel {
		e.mu.Unlock()
		return
	}
	changed := s.store.applyInbound(ev)
	e.mu.Unlock()

	if changed {
		e.notify(events.ChangeMessages, ev.Channel)
	}
}

func (e *Engine) handlePresence(ev backend.PresenceEvent) {
	e.mu.Lock()
	s := e.session
	if s == nil || ev.Channel != s.channel {
		e.mu.Unlock()
		return
	}
	changed := s.presence.applyEvent(ev)
	e.mu.Unlock()

	if changed {
		e.notify(events.ChangePresence, ev.Channel)
	}
}

func (e *Engine) handleSignal(ev backend.SignalEvent) {
	if ev.Publisher == e.self.ID {
		return
	}

	decoded, err := backend.DecodeSignal(ev.Payload)
	if err != nil {
		e.logger.Debug().Err(err).Str("publisher", ev.Publisher).Msg("dropping malformed signal")
		return
	}

	e.mu.Lock()
	s := e.session
	if s == nil || ev.Channel != s.channel {
		e.mu.Unlock()
		return
	}

	var kind events.ChangeKind
	changed := false
	switch sig := decoded.(type) {
	case backend.TypingSignal:
		if sig.UserID != e.self.ID {
			changed = s.typing.applyInbound(sig, time.Now())
			kind = events.ChangeTyping
		}
	case backend.ReadSignal:
		if sig.UserID != e.self.ID {
			changed = s.reads.applyInbound(sig)
			kind = events.ChangeReads
		}
	}
	e.mu.Unlock()

	if changed {
		e.notify(kind, ev.Channel)
	}
}

func (e *Engine) handleAction(ev backend.ActionEvent) {
	e.mu.Lock()
	s := e.session
	if s == nil || ev.Channel != s.channel {
		e.mu.Unlock()
		return
	}
	var changed bool
	if ev.Added {
		changed = s.store.applyActionAdded(ev)
	} else {
		changed = s.store.applyActionRemoved(ev)
	}
	e.mu.Unlock()

	if changed {
		e.notify(events.ChangeMessages, ev.Channel)
	}
}

func (e *Engine) handleStatus(ev backend.StatusEvent) {
	e.mu.Lock()
	changed := e.conn.apply(ev.Category)
	s := e.session
	reassert := ev.Category == backend.StatusReconnected && s != nil
	e.mu.Unlock()

	if changed {
		e.notify(events.ChangeConnection, "")
	}
	if reassert {
		// The subscription and our presence display state may have lapsed
		// while offline.
		go func() {
			if err := e.backend.Subscribe(s.ctx, s.channel, true); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warn().Err(err).Str("channel", s.channel).Msg("resubscribe failed")
			}
		}()
		go e.assertPresenceState(s)
	}
}

// withSession runs fn under the engine lock if the session epoch still
// matches, returning fn's result. Stale completions from a previous channel
// are discarded here.
func (e *Engine) withSession(epoch uint64, fn func(*session) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.epoch != epoch {
		e.logger.Debug().Uint64("epoch", epoch).Msg("discarding stale completion")
		return false
	}
	return fn(e.session)
}

func (e *Engine) sendTypingSignal(ctx context.Context, channel string, typing bool) {
	payload, err := backend.EncodeTypingSignal(backend.TypingSignal{
		UserID: e.self.ID,
		Name:   e.self.Name,
		Typing: typing,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("encode typing signal")
		return
	}
	go func() {
		if err := e.backend.Signal(ctx, channel, payload); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Debug().Err(err).Bool("typing", typing).Msg("typing signal failed")
		}
	}()
}

func (e *Engine) notify(kind events.ChangeKind, channel string) {
	e.notifier.Publish(events.Change{Kind: kind, Channel: channel})
}
