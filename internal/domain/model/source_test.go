package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	require.Equal(t, SourceLeader, ParseSource("Leader"))
	require.Equal(t, SourceClient, ParseSource("Client"))
	// Anything unrecognised is treated as a client origin.
	require.Equal(t, SourceClient, ParseSource(""))
	require.Equal(t, SourceClient, ParseSource("leader"))
}

func TestSourceString(t *testing.T) {
	require.Equal(t, "Leader", SourceLeader.String())
	require.Equal(t, "Client", SourceClient.String())
}

func TestMessageKeyDistinguishesFields(t *testing.T) {
	base := Message{Sender: "alice", Recipient: "bob", Body: "hi", Timestamp: "2026-01-02T10:00:00Z"}

	same := base
	require.Equal(t, base.Key(), same.Key())

	other := base
	other.Timestamp = "2026-01-02T10:00:01Z"
	require.NotEqual(t, base.Key(), other.Key())

	// Field concatenation must not be ambiguous.
	a := Message{Sender: "x", Recipient: "yz", Body: "b", Timestamp: "t"}
	b := Message{Sender: "xy", Recipient: "z", Body: "b", Timestamp: "t"}
	require.NotEqual(t, a.Key(), b.Key())
}
