package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	l, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer l.Close()

	l.Record("console", ActionKick, "lobby", "bob", "")
	l.Record("console", ActionMute, "lobby", "alice", "5s")

	entries := l.Recent(10)
	require.Len(t, entries, 2)
	require.Equal(t, ActionMute, entries[0].Action) // newest first
	require.Equal(t, ActionKick, entries[1].Action)
}

func TestNilLogIsNoOp(t *testing.T) {
	var l *Log
	require.NotPanics(t, func() {
		l.Record("console", ActionShutdown, "", "", "")
	})
	require.Empty(t, l.Recent(10))
	require.NoError(t, l.Close())
}
