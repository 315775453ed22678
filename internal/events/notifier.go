// Package events provides in-process change notification for the sync engine.
// The engine publishes a Change after every applied mutation; the rendering
// layer subscribes and re-reads the snapshot it cares about.
package events

import (
	"sync"
)

// ChangeKind identifies which slice of the read model changed.
type ChangeKind string

const (
	ChangeMessages   ChangeKind = "messages"
	ChangePresence   ChangeKind = "presence"
	ChangeTyping     ChangeKind = "typing"
	ChangeReads      ChangeKind = "reads"
	ChangeConnection ChangeKind = "connection"
	ChangeSession    ChangeKind = "session"
)

// Change describes one read-model update.
type Change struct {
	Kind    ChangeKind
	Channel string
}

// Handler is a callback invoked for every published change.
type Handler func(change Change)

// Filter limits which changes a subscription receives.
type Filter struct {
	// Kinds filters by change kind (nil = all kinds).
	Kinds []ChangeKind
}

// Matches returns true if the change passes the filter.
func (f *Filter) Matches(change Change) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if change.Kind == k {
			return true
		}
	}
	return false
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Notifier fans changes out to subscribers.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subscriptions: make(map[string]*subscription)}
}

// Publish delivers a change to all matching subscribers. Handlers run on the
// caller's goroutine, outside the notifier lock.
func (n *Notifier) Publish(change Change) {
	n.mu.RLock()
	var handlers []Handler
	for _, sub := range n.subscriptions {
		if sub.filter.Matches(change) {
			handlers = append(handlers, sub.handler)
		}
	}
	n.mu.RUnlock()

	for _, handler := range handlers {
		handler(change)
	}
}

// Subscribe registers a handler under the given id.
func (n *Notifier) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}
	n.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes a subscription by id.
func (n *Notifier) Unsubscribe(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(n.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions)
}

// Close removes all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions = make(map[string]*subscription)
}

// Errors for notifier operations.
var (
	ErrInvalidSubscriptionID = &NotifierError{Message: "subscription ID is required"}
	ErrNilHandler            = &NotifierError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &NotifierError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &NotifierError{Message: "subscription not found"}
)

// NotifierError represents an error from notifier operations.
type NotifierError struct {
	Message string
}

func (e *NotifierError) Error() string {
	return e.Message
}
