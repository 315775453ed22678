package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/palaverhq/palaver/internal/models"
)

func TestDecodeSignalTyping(t *testing.T) {
	payload, err := EncodeTypingSignal(TypingSignal{UserID: "u1", Name: "Ann", Typing: true})
	require.NoError(t, err)

	decoded, err := DecodeSignal(payload)
	require.NoError(t, err)
	sig, ok := decoded.(TypingSignal)
	require.True(t, ok)
	require.Equal(t, "u1", sig.UserID)
	require.Equal(t, "Ann", sig.Name)
	require.True(t, sig.Typing)
}

func TestDecodeSignalTypingStop(t *testing.T) {
	// typing=false must survive the round trip; it is the stop broadcast.
	payload, err := EncodeTypingSignal(TypingSignal{UserID: "u1", Typing: false})
	require.NoError(t, err)

	decoded, err := DecodeSignal(payload)
	require.NoError(t, err)
	sig, ok := decoded.(TypingSignal)
	require.True(t, ok)
	require.False(t, sig.Typing)
}

func TestDecodeSignalRead(t *testing.T) {
	payload, err := EncodeReadSignal(ReadSignal{UserID: "u1", ReadToken: 17269380000000000})
	require.NoError(t, err)

	decoded, err := DecodeSignal(payload)
	require.NoError(t, err)
	sig, ok := decoded.(ReadSignal)
	require.True(t, ok)
	require.Equal(t, models.Token(17269380000000000), sig.ReadToken)
}

func TestDecodeSignalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not json"},
		{"missing user id", `{"t":true}`},
		{"unknown shape", `{"id":"u1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSignal([]byte(tt.payload))
			require.Error(t, err)
		})
	}
}
