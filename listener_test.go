package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatserver/internal/chatstore"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestListenerSetAcceptsAfterBarrierReleases(t *testing.T) {
	port := freeTCPPort(t)
	descs := []chatstore.ChannelDescriptor{{Name: "lobby", Port: port, Capacity: 2}}

	srv := testServer(t, descs)
	sink := NewSink(nopWriter{})
	ls := NewListenerSet(sink, slog.New(slog.DiscardHandler), srv.HandleConnection)

	ls.Run(descs)

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	conn.Write([]byte("$User: alice\n"))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$01-JoinSuccess: lobby\n", line)
}
