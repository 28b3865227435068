package main

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatserver/internal/chatstore"
)

func TestAdminKickDisconnectsTarget(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	c, s := connectedPair(t)
	go srv.HandleConnection(s, "lobby")
	r := bufio.NewReader(c)
	c.Write([]byte("$User: bob\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, r))

	srv.adminKick([]string{"lobby", "bob"})
	require.Equal(t, "$Kick", readLine(t, r))

	c.Write([]byte("$Quit-kicked\n"))
	// Disconnect closes bob's socket while holding the store lock, so once
	// the read fails the kick has been applied.
	_, err := r.ReadString('\n')
	require.Error(t, err)
	require.False(t, srv.Store.IsActive("lobby", "bob"))
	c.Close()
}

func TestAdminMuteSuppressesChat(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	c, s := connectedPair(t)
	go srv.HandleConnection(s, "lobby")
	r := bufio.NewReader(c)
	c.Write([]byte("$User: alice\n"))
	require.Equal(t, "$01-JoinSuccess: lobby", readLine(t, r))

	srv.adminMute([]string{"lobby", "alice", "5"})
	require.Equal(t, "[Server Message] You have been muted for 5 seconds.", readLine(t, r))

	c.Write([]byte("hello\n"))
	line := readLine(t, r)
	require.True(t, strings.HasPrefix(line, "[Server Message] You are still in mute for"))

	c.Close()
}

func TestAdminEmptyPromotesQueue(t *testing.T) {
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

	srv.adminEmpty([]string{"gym"})
	require.Equal(t, "$Empty", readLine(t, r1))
	require.Equal(t, "$02-JoinSuccess: gym", readLine(t, r2))

	c1.Close()
	c2.Close()
}

func TestAdminUsageErrorsMakeNoStateChange(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})

	srv.adminKick([]string{"lobby"}) // wrong arity
	srv.adminMute([]string{"lobby", "alice", "notanumber"})
	srv.adminEmpty([]string{})

	require.Empty(t, srv.Store.Snapshot()[0].Active)
}

func TestMuteClockExpiresMutes(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})
	c, s := connectedPair(t)
	go srv.HandleConnection(s, "lobby")
	r := bufio.NewReader(c)
	c.Write([]byte("$User: alice\n"))
	readLine(t, r)

	require.True(t, srv.Store.Mute("lobby", "alice", time.Now().Add(-time.Second)))
	srv.Store.ExpireMutes(time.Now())

	status, ok := srv.Store.MemberStatus("lobby", "alice")
	require.True(t, ok)
	require.Equal(t, chatstore.StatusInChannel, status)
	c.Close()
}
