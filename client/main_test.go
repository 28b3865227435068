package main

import (
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// discardConn is a net.Conn whose writes are silently dropped and reads
// return no data, for tests that only care about handleJoinOrQueue's status
// side effect rather than the bytes it writes back.
type discardConn struct{ net.Conn }

func (discardConn) Write(p []byte) (int, error) { return len(p), nil }
func (discardConn) Read(p []byte) (int, error)  { return 0, nil }

func TestHandleJoinSetsInChannelStatus(t *testing.T) {
	var st status
	handleJoinOrQueue(discardConn{}, "$01-JoinSuccess: lobby", &st)
	require.Equal(t, "in-channel", st.get())
}

func TestHandlePromotionSetsInChannelStatus(t *testing.T) {
	var st status
	st.set("in-queue")
	handleJoinOrQueue(discardConn{}, "$02-JoinSuccess: lobby", &st)
	require.Equal(t, "in-channel", st.get())
}

func TestHandleQueuedSetsInQueueStatus(t *testing.T) {
	var st status
	handleJoinOrQueue(discardConn{}, "$01-InQueue: 2", &st)
	require.Equal(t, "in-queue", st.get())
}

// readServer prints the welcome line only when this CompareAndSwap on its
// welcomed flag succeeds; this checks that the guard succeeds only once.
func TestWelcomedGuardSucceedsOnlyOnce(t *testing.T) {
	var w atomic.Bool
	require.True(t, w.CompareAndSwap(false, true))
	require.False(t, w.CompareAndSwap(false, true))
}
