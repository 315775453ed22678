package engine

import "errors"

// Engine errors.
var (
	// ErrNoActiveChannel is returned by commands that require an activated
	// channel session.
	ErrNoActiveChannel = errors.New("engine: no active channel")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrReactionNotFound is returned when removing a reaction the local user
	// never added.
	ErrReactionNotFound = errors.New("engine: no matching reaction by this user")

	// ErrEmptyMessage is returned when sending a message with no text and no
	// file reference.
	ErrEmptyMessage = errors.New("engine: message has no content")
)
