package engine

import (
	"context"
)

// session is the per-channel state bundle. Exactly one session is live at a
// time; switching channels discards the whole bundle, so no state leaks
// across channels.
//
// Every session carries an epoch and a context. Async completions (history
// pages, presence snapshots, publish acks) re-enter the engine tagged with
// the epoch they started under and are discarded when it no longer matches,
// which is how a slow fetch for channel A is prevented from corrupting
// channel B after a switch.
type session struct {
	channel string
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc

	store    *messageStore
	pager    *historyPager
	presence *presenceTracker
	typing   *typingCoordinator
	reads    *readTracker
}

func newSession(parent context.Context, channel string, epoch uint64, pageSize int) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		channel:  channel,
		epoch:    epoch,
		ctx:      ctx,
		cancel:   cancel,
		store:    newMessageStore(channel),
		pager:    newHistoryPager(pageSize),
		presence: newPresenceTracker(),
		typing:   newTypingCoordinator(),
		reads:    newReadTracker(),
	}
}

// teardown cancels in-flight work and disarms timers. Must run before the
// session pointer is dropped.
func (s *session) teardown() {
	s.cancel()
	s.typing.stopTimer()
	s.reads.stopTimer()
}
