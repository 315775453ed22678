package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

// fakeBackend is a scripted backend.Backend for engine tests. Every call is
// recorded; behavior is overridden per test through the function hooks.
type fakeBackend struct {
	mu sync.Mutex

	events chan backend.Event

	historyFn  func(channel string, count int, before models.Token) (backend.HistoryPage, error)
	snapshotFn func(channel string) ([]backend.Occupant, error)

	subscribeErr error
	publishErr   error
	setStateErr  error

	subscribes    []string
	unsubscribes  []string
	published     []models.MessagePayload
	signals       []sentSignal
	setStates     []models.PresenceState
	actionAdds    []sentAction
	actionRemoves []models.Token
	historyCalls  int

	nextActionToken models.Token
}

type sentSignal struct {
	channel string
	payload []byte
}

type sentAction struct {
	message models.Token
	kind    string
	value   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:          make(chan backend.Event, 64),
		nextActionToken: 9000,
	}
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, withPresence bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, channel)
	return f.subscribeErr
}

func (f *fakeBackend) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, channel)
	return nil
}

func (f *fakeBackend) Publish(ctx context.Context, channel string, payload models.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return f.publishErr
}

func (f *fakeBackend) Signal(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sentSignal{channel: channel, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeBackend) FetchHistory(ctx context.Context, channel string, count int, before models.Token) (backend.HistoryPage, error) {
	f.mu.Lock()
	f.historyCalls++
	fn := f.historyFn
	f.mu.Unlock()
	if fn == nil {
		return backend.HistoryPage{}, nil
	}
	return fn(channel, count, before)
}

func (f *fakeBackend) PresenceSnapshot(ctx context.Context, channel string) ([]backend.Occupant, error) {
	f.mu.Lock()
	fn := f.snapshotFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(channel)
}

func (f *fakeBackend) SetPresenceState(ctx context.Context, channel string, state models.PresenceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStates = append(f.setStates, state)
	return f.setStateErr
}

func (f *fakeBackend) AddMessageAction(ctx context.Context, channel string, message models.Token, kind, value string) (models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actionAdds = append(f.actionAdds, sentAction{message: message, kind: kind, value: value})
	f.nextActionToken++
	return f.nextActionToken, nil
}

func (f *fakeBackend) RemoveMessageAction(ctx context.Context, channel string, message, action models.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actionRemoves = append(f.actionRemoves, action)
	return nil
}

func (f *fakeBackend) Events() <-chan backend.Event {
	return f.events
}

func (f *fakeBackend) Close() error {
	close(f.events)
	return nil
}

func (f *fakeBackend) emit(ev backend.Event) {
	f.events <- ev
}

func (f *fakeBackend) historyCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

func (f *fakeBackend) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeBackend) sentSignals() []sentSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSignal(nil), f.signals...)
}

func (f *fakeBackend) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func (f *fakeBackend) setStateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setStates)
}

// historyOf builds a fixed-page historyFn serving pre-seeded messages, newest
// page first, respecting count and the before cursor.
func historyOf(messages ...backend.HistoryMessage) func(string, int, models.Token) (backend.HistoryPage, error) {
	return func(_ string, count int, before models.Token) (backend.HistoryPage, error) {
		end := len(messages)
		if !before.IsZero() {
			for end > 0 && messages[end-1].Token >= before {
				end--
			}
		}
		start := end - count
		if start < 0 {
			start = 0
		}
		page := backend.HistoryPage{Messages: append([]backend.HistoryMessage(nil), messages[start:end]...)}
		if len(page.Messages) > 0 {
			page.OldestToken = page.Messages[0].Token
		}
		return page, nil
	}
}

func historyMessage(token models.Token, senderID, text string) backend.HistoryMessage {
	return backend.HistoryMessage{
		Token:     token,
		Publisher: senderID,
		Payload: models.MessagePayload{
			Text:   text,
			Sender: models.Sender{ID: senderID, Name: senderID},
			Type:   "text",
		},
	}
}

var testSelf = models.Sender{ID: "self-1", Name: "Self"}

// newTestEngine wires an engine with short timings against a fake backend
// and starts its event loop.
func newTestEngine(t *testing.T, f *fakeBackend) *Engine {
	t.Helper()
	eng := New(Config{
		PageSize:               3,
		PresencePollInterval:   25 * time.Millisecond,
		TypingIdleTimeout:      60 * time.Millisecond,
		ReadSettleDelay:        10 * time.Millisecond,
		PresenceStateRetryBase: 5 * time.Millisecond,
		PresenceStateRetryMax:  3,
	}, f, testSelf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		eng.Deactivate()
		cancel()
		<-done
	})
	return eng
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
