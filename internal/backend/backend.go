// Package backend defines the realtime messaging backend consumed by the sync
// engine: pub/sub with presence, paginated history, ephemeral signals, and
// per-message actions. The engine treats implementations as black boxes; the
// in-process Memory implementation backs the demo client and the test suite.
package backend

import (
	"context"
	"errors"

	"github.com/palaverhq/palaver/internal/models"
)

// Backend errors.
var (
	// ErrAccessDenied indicates the backend refused the operation for
	// authorization reasons. Terminal for the current subscription; callers
	// must surface it and never retry automatically.
	ErrAccessDenied = errors.New("backend: access denied")

	// ErrNotSubscribed indicates an operation that requires an active
	// subscription was attempted without one.
	ErrNotSubscribed = errors.New("backend: not subscribed to channel")

	// ErrClosed indicates the backend has been shut down.
	ErrClosed = errors.New("backend: closed")
)

// IsAccessDenied reports whether err is an authorization failure.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// HistoryPage is one page of past messages, sorted ascending by token.
type HistoryPage struct {
	Messages []HistoryMessage

	// OldestToken is the token of the oldest message in the page, used as the
	// cursor for the next older page. Zero when the page is empty.
	OldestToken models.Token
}

// HistoryMessage is one stored message as returned by FetchHistory.
type HistoryMessage struct {
	Token     models.Token
	Publisher string
	Payload   models.MessagePayload
	File      *models.FileRef
	Actions   []StoredAction
}

// StoredAction is a message action included with fetched history.
type StoredAction struct {
	ActionToken models.Token
	ActorID     string
	Kind        string
	Value       string
}

// Occupant is one entry in a presence snapshot.
type Occupant struct {
	UserID string
	State  *models.PresenceState
}

// Backend is the abstract realtime messaging service.
//
// All blocking operations take a context; implementations must honor
// cancellation. Events delivers every inbound event for subscribed channels in
// arrival order on a single channel, giving the engine its one-at-a-time
// processing model.
type Backend interface {
	// Subscribe starts delivery of events for the channel. withPresence also
	// enables presence events and counts this client as an occupant.
	Subscribe(ctx context.Context, channel string, withPresence bool) error

	// Unsubscribe stops delivery of events for the channel.
	Unsubscribe(channel string) error

	// Publish stores and fans out a message. Delivery back to the publisher
	// happens through the event stream, which is where reconciliation occurs.
	Publish(ctx context.Context, channel string, payload models.MessagePayload) error

	// Signal broadcasts a small ephemeral payload without persistence or
	// delivery guarantees.
	Signal(ctx context.Context, channel string, payload []byte) error

	// FetchHistory returns up to count messages older than before, or the most
	// recent page when before is zero.
	FetchHistory(ctx context.Context, channel string, count int, before models.Token) (HistoryPage, error)

	// PresenceSnapshot returns the full current occupant roster.
	PresenceSnapshot(ctx context.Context, channel string) ([]Occupant, error)

	// SetPresenceState attaches display state to this client's presence.
	SetPresenceState(ctx context.Context, channel string, state models.PresenceState) error

	// AddMessageAction attaches an action (e.g. a reaction) to a message and
	// returns its action token.
	AddMessageAction(ctx context.Context, channel string, message models.Token, kind, value string) (models.Token, error)

	// RemoveMessageAction removes a previously added action by its token.
	RemoveMessageAction(ctx context.Context, channel string, message, action models.Token) error

	// Events is the single inbound event stream. Closed when the backend
	// shuts down.
	Events() <-chan Event

	// Close tears the backend down and closes the event stream.
	Close() error
}
