package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now().Truncate(100 * time.Nanosecond)
	token := TokenAt(now)
	require.False(t, token.IsZero())
	require.True(t, token.Time().Equal(now))
}

func TestTokenOrderingFollowsTime(t *testing.T) {
	earlier := TokenAt(time.Unix(1000, 0))
	later := TokenAt(time.Unix(1000, 200))
	require.Less(t, earlier, later)
}

func TestMessageCloneIsDeep(t *testing.T) {
	m := Message{
		Token:  100,
		Sender: Sender{ID: "u1", Name: "Ann"},
		Text:   "original",
		File:   &FileRef{ID: "f1", Name: "pic.png"},
		Reactions: map[string][]ReactionEntry{
			"👍": {{ActorID: "u2", ActionToken: 900}},
		},
	}

	clone := m.Clone()
	clone.File.Name = "changed.png"
	clone.Reactions["👍"][0].ActorID = "changed"
	clone.Reactions["🎉"] = []ReactionEntry{{ActorID: "u3", ActionToken: 901}}

	require.Equal(t, "pic.png", m.File.Name)
	require.Equal(t, "u2", m.Reactions["👍"][0].ActorID)
	require.NotContains(t, m.Reactions, "🎉")
}
