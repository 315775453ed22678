// Package chattui is a small terminal client for the sync engine. It renders
// the read model and forwards key input as engine commands; all conversation
// state lives in the engine.
package chattui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/palaverhq/palaver/internal/engine"
	"github.com/palaverhq/palaver/internal/events"
)

const changeBuffer = 64

type changeMsg events.Change

// App is the bubbletea model.
type App struct {
	engine  *engine.Engine
	changes chan events.Change

	view   engine.View
	input  string
	width  int
	height int
}

// New creates the TUI app and subscribes it to engine change notifications.
func New(eng *engine.Engine) (*App, error) {
	a := &App{
		engine:  eng,
		changes: make(chan events.Change, changeBuffer),
		view:    eng.Snapshot(),
	}
	err := eng.Notifier().Subscribe("chattui", events.Filter{}, func(change events.Change) {
		select {
		case a.changes <- change:
		default:
			// Coalesce: a pending change already forces a re-read.
		}
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close unsubscribes from the engine.
func (a *App) Close() {
	_ = a.engine.Notifier().Unsubscribe("chattui")
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.waitForChange()
}

func (a *App) waitForChange() tea.Cmd {
	return func() tea.Msg {
		return changeMsg(<-a.changes)
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case changeMsg:
		a.view = a.engine.Snapshot()
		if msg.Kind == events.ChangeMessages {
			// The view always follows the newest message.
			a.engine.MarkRead()
		}
		return a, a.waitForChange()

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		a.engine.Deactivate()
		return a, tea.Quit

	case tea.KeyEnter:
		if a.input != "" {
			if _, err := a.engine.SendMessage(a.input, nil); err == nil {
				a.input = ""
			}
		}
		return a, nil

	case tea.KeyBackspace:
		if len(a.input) > 0 {
			runes := []rune(a.input)
			a.input = string(runes[:len(runes)-1])
			a.engine.SetTyping(len(a.input) > 0)
		}
		return a, nil

	case tea.KeyPgUp:
		_ = a.engine.FetchMoreHistory()
		return a, nil

	case tea.KeySpace:
		a.input += " "
		a.engine.SetTyping(true)
		return a, nil

	case tea.KeyRunes:
		a.input += string(msg.Runes)
		a.engine.SetTyping(true)
		return a, nil
	}
	return a, nil
}
