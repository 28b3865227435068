package main

import (
	"bufio"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatserver/internal/audit"
	"chatserver/internal/chatstore"
)

func testServer(t *testing.T, descs []chatstore.ChannelDescriptor) *Server {
	t.Helper()
	l, err := audit.Open(":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return &Server{
		Store: chatstore.New(descs, slog.New(slog.DiscardHandler)),
		Sink:  NewSink(nopWriter{}),
		Audit: l,
		Log:   slog.New(slog.DiscardHandler),
		AFK:   2 * time.Second,
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// connectedPair returns two ends of a loopback TCP connection, one handed
// to the server handler goroutine and one kept by the test as the
// simulated client. The kernel buffers writes, so the store's sends under
// its lock complete before the test reads them.
func connectedPair(t *testing.T) (client net.Conn, server net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	client, err = net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	server, err = l.Accept()
	require.NoError(t, err)
	return client, server
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func TestHandlerAdmitsAndBroadcastsChat(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	aliceClient, aliceServer := connectedPair(t)
	go srv.HandleConnection(aliceServer, "lobby")
	aliceR := bufio.NewReader(aliceClient)

	aliceClient.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, aliceR))

	bobClient, bobServer := connectedPair(t)
	go srv.HandleConnection(bobServer, "lobby")
	bobR := bufio.NewReader(bobClient)
	bobClient.Write([]byte("$User: bob\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, bobR))
	require.Equal(t, "[Server Message] bob has joined the channel \"lobby\".", readLine(t, aliceR))

	aliceClient.Write([]byte("hello\n"))
	require.Equal(t, "[alice] hello", readLine(t, aliceR))
	require.Equal(t, "[alice] hello", readLine(t, bobR))

	aliceClient.Write([]byte("$Quit\n"))
	require.Equal(t, "[Server Message] alice has left the channel.", readLine(t, bobR))
	aliceClient.Close()
	bobClient.Close()
}

func TestHandlerDuplicateUsernameRejected(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	c1, s1 := connectedPair(t)
	go srv.HandleConnection(s1, "lobby")
	r1 := bufio.NewReader(c1)
	c1.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, r1))

	c2, s2 := connectedPair(t)
	go srv.HandleConnection(s2, "lobby")
	r2 := bufio.NewReader(c2)
	c2.Write([]byte("$User: alice\n"))
	require.Equal(t, "$UserError: lobby", readLine(t, r2))

	c1.Close()
	c2.Close()
}

func TestHandlerQueueingAndPromotion(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "gym", Port: 9001, Capacity: 1}})

	c1, s1 := connectedPair(t)
	go srv.HandleConnection(s1, "gym")
	r1 := bufio.NewReader(c1)
	c1.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: gym", readLine(t, r1))

	c2, s2 := connectedPair(t)
	go srv.HandleConnection(s2, "gym")
	r2 := bufio.NewReader(c2)
	c2.Write([]byte("$User: bob\n"))
	require.Equal(t, "$01-InQueue: 0", readLine(t, r2))

	c1.Write([]byte("$Quit\n"))
	require.Equal(t, "$02-JoinSuccess: gym", readLine(t, r2))

	c1.Close()
	c2.Close()
}

func TestHandlerWhisperToSelf(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	c1, s1 := connectedPair(t)
	go srv.HandleConnection(s1, "lobby")
	r1 := bufio.NewReader(c1)
	c1.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, r1))

	c1.Write([]byte("/whisper alice hi\n"))
	require.Equal(t, "[alice whispers to you] hi", readLine(t, r1))

	c1.Close()
}

func TestHandlerSwitchWarnsOnQueuedDuplicate(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{
		{Name: "lobby", Port: 9000, Capacity: 2},
		{Name: "gym", Port: 9001, Capacity: 1},
	})

	// bob seats gym's only slot.
	cBob, sBob := connectedPair(t)
	go srv.HandleConnection(sBob, "gym")
	rBob := bufio.NewReader(cBob)
	cBob.Write([]byte("$User: bob\n"))
	require.Equal(t, "$01-JoinSuccess: gym", readLine(t, rBob))

	// alice queues behind bob in gym (gym is full).
	cGymQueued, sGymQueued := connectedPair(t)
	go srv.HandleConnection(sGymQueued, "gym")
	rGymQueued := bufio.NewReader(cGymQueued)
	cGymQueued.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-InQueue: 0", readLine(t, rGymQueued))

	// a separate alice connection, seated in lobby, asks to /switch into
	// gym: she should get an informational $UserDup, not silence, even
	// though the conflicting alice in gym is queued rather than active.
	cLobby, sLobby := connectedPair(t)
	go srv.HandleConnection(sLobby, "lobby")
	rLobby := bufio.NewReader(cLobby)
	cLobby.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, rLobby))

	cLobby.Write([]byte("/switch gym\n"))
	require.Equal(t, "$UserDup: gym", readLine(t, rLobby))

	cBob.Close()
	cGymQueued.Close()
	cLobby.Close()
}
