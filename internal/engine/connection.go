package engine

import (
	"github.com/palaverhq/palaver/internal/backend"
)

// ConnState is the connectivity state exposed to the rendering layer.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// ConnectionInfo is the read-model slice describing connectivity.
type ConnectionInfo struct {
	State        ConnState
	Connected    bool
	Reconnecting bool

	// Err is set when the backend reported a fatal authorization failure.
	// Terminal for the current subscription; the caller must re-authenticate.
	Err error
}

// connectionMonitor tracks backend connectivity from status events. Everything
// else only reads its flags; nothing blocks on connection state.
type connectionMonitor struct {
	state ConnState
	fatal error
}

func newConnectionMonitor() *connectionMonitor {
	return &connectionMonitor{state: StateDisconnected}
}

// connecting marks the start of a subscribe attempt.
func (c *connectionMonitor) connecting() {
	if c.fatal == nil {
		c.state = StateConnecting
	}
}

// apply folds a status category into the state machine and reports whether
// anything changed.
func (c *connectionMonitor) apply(category backend.StatusCategory) bool {
	prev := c.state
	prevFatal := c.fatal
	switch category {
	case backend.StatusConnected, backend.StatusReconnected:
		c.state = StateConnected
	case backend.StatusNetworkDown, backend.StatusNetworkIssues:
		// Transient: the backend reconnects on its own, we only reflect it.
		c.state = StateReconnecting
	case backend.StatusAccessDenied:
		c.state = StateDisconnected
		c.fatal = backend.ErrAccessDenied
	}
	return c.state != prev || !sameErr(c.fatal, prevFatal)
}

// reset clears state for a fresh session. A fatal auth error is sticky until
// reset; it is never retried automatically.
func (c *connectionMonitor) reset() {
	c.state = StateDisconnected
	c.fatal = nil
}

func (c *connectionMonitor) info() ConnectionInfo {
	return ConnectionInfo{
		State:        c.state,
		Connected:    c.state == StateConnected,
		Reconnecting: c.state == StateReconnecting,
		Err:          c.fatal,
	}
}

func sameErr(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}
