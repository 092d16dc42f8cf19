package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionState_String(t *testing.T) {
	req := require.New(t)

	req.Equal("disconnected", StateDisconnected.String())
	req.Equal("awaiting_identity", StateAwaitingIdentity.String())
	req.Equal("terminated", StateTerminated.String())
	req.Equal("unknown", SessionState(42).String())
}

func TestLocalSessionState_Claim_And_Reset(t *testing.T) {
	req := require.New(t)
	var state LocalSessionState

	// Given a claimed identity
	state.Claim(NewParticipant("k1", "Alice", time.Now()))

	// Then only its record key is self
	req.True(state.Joined)
	req.True(state.IsSelf("k1"))
	req.False(state.IsSelf("k2"))

	// When reset nothing is self anymore
	state.Reset()
	req.False(state.Joined)
	req.False(state.IsSelf("k1"))
}

func TestLocalSessionState_JoinedBefore(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	state := &LocalSessionState{}

	// Given no claim, nobody is considered a newcomer
	req.False(state.JoinedBefore(NewParticipant("2", "Bob", at)))

	// When Alice claims her name
	state.Claim(NewParticipant("1", "Alice", at))

	// Then only later records are newcomers
	req.True(state.JoinedBefore(NewParticipant("2", "Bob", at.Add(time.Millisecond))))
	req.False(state.JoinedBefore(NewParticipant("0", "Carol", at.Add(-time.Minute))))
	req.False(state.JoinedBefore(NewParticipant("3", "Dave", time.Time{})))
}
