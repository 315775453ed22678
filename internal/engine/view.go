package engine

import (
	"github.com/palaverhq/palaver/internal/models"
)

// View is the reactive read model for the active channel, handed to the
// rendering layer as an independent deep copy.
type View struct {
	Channel     string
	Messages    []models.Message
	OnlineUsers []models.PresenceEntry
	TypingUsers []models.TypingEntry

	// ReadCursors maps user id to the last-read token that user broadcast.
	// Read state is matched by exact token: a cursor marks only the single
	// message whose token equals it, not everything older. This mirrors the
	// original client; see ReadBy.
	ReadCursors map[string]models.Token

	Connection     ConnectionInfo
	HasMoreHistory bool
	IsPaginating   bool
}

// ReadBy returns the ids of users whose cursor equals token exactly.
func (v View) ReadBy(token models.Token) []string {
	var out []string
	for id, cursor := range v.ReadCursors {
		if cursor == token {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns the current read model. Safe to call from any goroutine;
// the returned value shares nothing with engine state.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := View{Connection: e.conn.info()}
	s := e.session
	if s == nil {
		return view
	}
	view.Channel = s.channel
	view.Messages = s.store.snapshot()
	view.OnlineUsers = s.presence.snapshot()
	view.TypingUsers = s.typing.snapshot()
	view.ReadCursors = s.reads.snapshot()
	view.HasMoreHistory = s.pager.hasMore
	view.IsPaginating = s.pager.inFlight
	return view
}
