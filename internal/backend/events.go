package backend

import "github.com/palaverhq/palaver/internal/models"

// Event is the tagged union of everything the backend can deliver. The engine
// dispatches over the concrete types exhaustively; an unknown event is a
// programming error, not a silent no-op.
type Event interface {
	isEvent()
	// EventChannel returns the channel the event belongs to. Status events
	// are connection-wide and return "".
	EventChannel() string
}

// MessageEvent delivers a persisted message, either live or redelivered.
type MessageEvent struct {
	Channel   string
	Token     models.Token
	Publisher string
	Payload   models.MessagePayload
	File      *models.FileRef
}

// PresenceAction is the kind of an incremental presence change.
type PresenceAction string

const (
	PresenceJoin        PresenceAction = "join"
	PresenceLeave       PresenceAction = "leave"
	PresenceTimeout     PresenceAction = "timeout"
	PresenceStateChange PresenceAction = "state-change"
)

// PresenceEvent delivers an incremental roster change.
type PresenceEvent struct {
	Channel string
	Action  PresenceAction
	UserID  string
	State   *models.PresenceState
}

// SignalEvent delivers an ephemeral broadcast (typing, read receipts).
type SignalEvent struct {
	Channel   string
	Publisher string
	Payload   []byte
}

// ActionEvent delivers a message-action add or remove.
type ActionEvent struct {
	Channel      string
	Added        bool
	MessageToken models.Token
	ActionToken  models.Token
	ActorID      string
	Kind         string
	Value        string
}

// StatusCategory classifies connection status changes.
type StatusCategory string

const (
	StatusConnected     StatusCategory = "connected"
	StatusReconnected   StatusCategory = "reconnected"
	StatusNetworkDown   StatusCategory = "network-down"
	StatusNetworkIssues StatusCategory = "network-issues"
	StatusAccessDenied  StatusCategory = "access-denied"
)

// StatusEvent reports a connection status change.
type StatusEvent struct {
	Category StatusCategory
}

func (MessageEvent) isEvent()  {}
func (PresenceEvent) isEvent() {}
func (SignalEvent) isEvent()   {}
func (ActionEvent) isEvent()   {}
func (StatusEvent) isEvent()   {}

func (e MessageEvent) EventChannel() string  { return e.Channel }
func (e PresenceEvent) EventChannel() string { return e.Channel }
func (e SignalEvent) EventChannel() string   { return e.Channel }
func (e ActionEvent) EventChannel() string   { return e.Channel }
func (StatusEvent) EventChannel() string     { return "" }
