package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// feedUpgrader mirrors the corpus's internal/ws upgrader: origin checking
// is left permissive since this is a local operator dashboard, not a
// public-facing surface.
var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

const feedWriteTimeout = 5 * time.Second

type feedFrame struct {
	Line string `json:"line"`
}

// handleFeed upgrades one request to a WebSocket and streams every sink
// line to it until the client disconnects, grounded on the corpus's
// internal/ws.Handler.serveConn: upgrade, subscribe, dedicated writer
// goroutine draining a channel so a slow client never blocks the sink.
func (s *Server) handleFeed(c echo.Context) error {
	conn, err := feedUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.Log.Debug("feed upgrade failed", "remote", c.RealIP(), "err", err)
		return err
	}
	defer conn.Close()

	ch := s.Sink.Subscribe()
	defer s.Sink.Unsubscribe(ch)

	// Drain (and discard) anything the browser sends; the feed is
	// one-directional. This also lets us notice the client closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for line := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteJSON(feedFrame{Line: line}); err != nil {
			s.Log.Debug("feed write failed", "remote", c.RealIP(), "err", err)
			return nil
		}
	}
	return nil
}
