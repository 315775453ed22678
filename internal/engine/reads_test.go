package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/models"
)

func readBroadcasts(f *fakeBackend) []backend.ReadSignal {
	var out []backend.ReadSignal
	for _, s := range f.sentSignals() {
		decoded, err := backend.DecodeSignal(s.payload)
		if err != nil {
			continue
		}
		if sig, ok := decoded.(backend.ReadSignal); ok {
			out = append(out, sig)
		}
	}
	return out
}

func mustEncodeRead(t *testing.T, sig backend.ReadSignal) []byte {
	t.Helper()
	payload, err := backend.EncodeReadSignal(sig)
	require.NoError(t, err)
	return payload
}

func TestReadTrackerLastWriteWins(t *testing.T) {
	r := newReadTracker()

	require.True(t, r.applyInbound(backend.ReadSignal{UserID: "u1", ReadToken: 500}))
	require.False(t, r.applyInbound(backend.ReadSignal{UserID: "u1", ReadToken: 500}))

	// An older cursor still overwrites: arrival order wins, not token order.
	require.True(t, r.applyInbound(backend.ReadSignal{UserID: "u1", ReadToken: 300}))
	require.Equal(t, models.Token(300), r.snapshot()["u1"])
}

func TestViewReadByMatchesExactTokenOnly(t *testing.T) {
	v := View{ReadCursors: map[string]models.Token{
		"u1": 500,
		"u2": 500,
		"u3": 700,
	}}

	require.ElementsMatch(t, []string{"u1", "u2"}, v.ReadBy(500))
	require.Empty(t, v.ReadBy(400))
	// A cursor marks only the message it points at, nothing older.
	require.Empty(t, v.ReadBy(499))
}

func TestMarkReadBroadcastsNewestConfirmed(t *testing.T) {
	f := newFakeBackend()
	f.historyFn = historyOf(
		historyMessage(500, "peer-1", "older"),
		historyMessage(700, "peer-1", "newest"),
	)
	eng := newTestEngine(t, f)
	require.NoError(t, eng.Activate("general"))
	waitFor(t, func() bool { return len(eng.Snapshot().Messages) == 2 })

	eng.MarkRead()

	waitFor(t, func() bool { return len(readBroadcasts(f)) == 1 })
	sig := readBroadcasts(f)[0]
	require.Equal(t, testSelf.ID, sig.UserID)
	require.Equal(t, models.Token(700), sig.ReadToken)
}

func TestMarkReadCoalescesWithinSettleDelay(t *testing.T) {
	f := newFakeBackend()
	f.historyFn = historyOf(historyMessage(700, "peer-1", "m"))
	eng := newTestEngine(t, f)
	require.NoError(t, eng.Activate("general"))
	waitFor(t, func() bool { return len(eng.Snapshot().Messages) == 1 })

	eng.MarkRead()
	eng.MarkRead()
	eng.MarkRead()

	waitFor(t, func() bool { return len(readBroadcasts(f)) == 1 })
	time.Sleep(40 * time.Millisecond)
	require.Len(t, readBroadcasts(f), 1)
}

func TestMarkReadSkipsUnchangedCursor(t *testing.T) {
	f := newFakeBackend()
	f.historyFn = historyOf(historyMessage(700, "peer-1", "m"))
	eng := newTestEngine(t, f)
	require.NoError(t, eng.Activate("general"))
	waitFor(t, func() bool { return len(eng.Snapshot().Messages) == 1 })

	eng.MarkRead()
	waitFor(t, func() bool { return len(readBroadcasts(f)) == 1 })

	// Nothing new arrived: no rebroadcast.
	eng.MarkRead()
	time.Sleep(40 * time.Millisecond)
	require.Len(t, readBroadcasts(f), 1)

	f.emit(backend.MessageEvent{
		Channel: "general", Token: 800, Publisher: "peer-1",
		Payload: models.MessagePayload{Text: "new", Sender: models.Sender{ID: "peer-1"}},
	})
	waitFor(t, func() bool { return len(eng.Snapshot().Messages) == 2 })

	eng.MarkRead()
	waitFor(t, func() bool { return len(readBroadcasts(f)) == 2 })
	require.Equal(t, models.Token(800), readBroadcasts(f)[1].ReadToken)
}

func TestMarkReadWithNoConfirmedMessagesStaysSilent(t *testing.T) {
	f := newFakeBackend()
	eng := newTestEngine(t, f)
	require.NoError(t, eng.Activate("general"))

	eng.MarkRead()
	time.Sleep(40 * time.Millisecond)
	require.Empty(t, readBroadcasts(f))
}

func TestInboundReadSignalUpdatesCursors(t *testing.T) {
	f := newFakeBackend()
	eng := newTestEngine(t, f)
	require.NoError(t, eng.Activate("general"))

	f.emit(backend.SignalEvent{
		Channel:   "general",
		Publisher: "peer-1",
		Payload:   mustEncodeRead(t, backend.ReadSignal{UserID: "peer-1", ReadToken: 600}),
	})

	waitFor(t, func() bool {
		return eng.Snapshot().ReadCursors["peer-1"] == models.Token(600)
	})
}
