package main

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chatserver/internal/chatstore"
)

func TestMonitorHealthAndChannels(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{
		{Name: "lobby", Port: 9000, Capacity: 2},
		{Name: "gym", Port: 9001, Capacity: 1},
	})
	mon := NewMonitorAPI(srv)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mon.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	rec = httptest.NewRecorder()
	mon.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var channels []channelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels, 2)
	require.Equal(t, "lobby", channels[0].Name)
	require.Equal(t, "gym", channels[1].Name)
}

func TestMonitorAuditReflectsRecordedActions(t *testing.T) {
	srv := testServer(t, []chatstore.ChannelDescriptor{{Name: "lobby", Port: 9000, Capacity: 2}})
	mon := NewMonitorAPI(srv)

	c, s := connectedPair(t)
	go srv.HandleConnection(s, "lobby")
	r := bufio.NewReader(c)
	c.Write([]byte("$User: bob\n"))
	readLine(t, r)

	srv.adminKick([]string{"lobby", "bob"})
	readLine(t, r) // $Kick
	c.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rec := httptest.NewRecorder()
	mon.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []auditEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "kick", entries[0].Action)
	require.Equal(t, "bob", entries[0].Target)
}
