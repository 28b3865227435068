package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"chatserver/internal/audit"
	"chatserver/internal/chatstore"
	"chatserver/internal/protocol"
)

// connAdapter makes a net.Conn satisfy chatstore.Sender: a line-oriented
// write plus the address/close surface the store needs to broadcast and
// to tear down a member's socket under its own lock.
type connAdapter struct {
	net.Conn
}

func (c *connAdapter) Send(line string) error {
	_, err := io.WriteString(c.Conn, line+"\n")
	return err
}

// Server bundles the shared collaborators a connection handler needs:
// the channel state store, the literal-text sink, the audit log, and the
// configured idle timeout. One Server is constructed in main and handed
// to every listener/handler/admin-console goroutine.
type Server struct {
	Store *chatstore.Store
	Sink  *Sink
	Audit *audit.Log
	Log   *slog.Logger
	AFK   time.Duration
}

// HandleConnection drives one accepted TCP connection through the
// Connection Handler state machine of spec.md §4.2: AwaitingHello →
// Admitted(InChannel|InQueue) → Terminated.
func (s *Server) HandleConnection(conn net.Conn, channelName string) {
	c := &connAdapter{Conn: conn}
	defer conn.Close()

	// A connection-scoped correlation id lets diagnostic log lines for the
	// same socket be grepped together, since many connections are handled
	// concurrently on their own goroutines.
	connID := uuid.New().String()
	log := s.Log.With("conn", connID, "channel", channelName, "remote", conn.RemoteAddr())

	reader := protocol.NewReader(conn)

	rearm := func() {
		conn.SetReadDeadline(time.Now().Add(s.AFK))
	}
	rearm()

	rec, err := reader.ReadRecord()
	if err != nil {
		return // nothing was ever admitted; abrupt close pre-hello
	}
	username, ok := protocol.ParseUserHello(rec.Text)
	if !ok {
		// Protocol violation: first record must be $User: <name>. Close
		// without ever having touched the store (spec.md §4.2).
		return
	}
	log = log.With("user", username)

	result, position := s.Store.Admit(channelName, username, c, s.Sink.Print)
	switch result {
	case chatstore.AdmitDuplicate:
		log.Debug("admit rejected, duplicate username")
		c.Send(protocol.UserError(channelName))
		return
	case chatstore.AdmitSeated:
		log.Debug("admit seated")
		c.Send(protocol.JoinSuccess01(channelName))
	case chatstore.AdmitQueued:
		log.Debug("admit queued", "position", position)
		c.Send(protocol.InQueue01(position))
	}

	s.connectionLoop(c, reader, rearm, channelName, username, log)
}

// connectionLoop processes records once a member has been admitted,
// exactly as dispatched by spec.md §4.2's Admitted-state table.
func (s *Server) connectionLoop(c *connAdapter, reader *protocol.Reader, rearm func(), channelName, username string, log *slog.Logger) {
	for {
		rec, err := reader.ReadRecord()
		if err != nil {
			if isTimeout(err) {
				log.Debug("idle timeout")
				s.disconnectAFK(channelName, username)
			} else {
				// EOF (clean close) or any other read error is treated as
				// an abrupt disconnect (spec.md §7 PeerReadError/EOF).
				log.Debug("connection closed", "err", err)
				s.Store.Disconnect(channelName, username, chatstore.ReasonAbrupt, s.Sink.Print)
			}
			return
		}
		rearm()

		if s.dispatch(c, rec, channelName, username) {
			return // handler requested termination (quit/kick)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// dispatch handles one Admitted-state record. It returns true if the
// connection should terminate (the member quit or was kicked).
func (s *Server) dispatch(c *connAdapter, rec protocol.Record, channelName, username string) bool {
	switch {
	case rec.Text == protocol.MarkerQuit || rec.Text == protocol.MarkerQuitKicked:
		reason := chatstore.ReasonQuit
		if rec.Text == protocol.MarkerQuitKicked {
			reason = chatstore.ReasonKicked
		}
		s.Store.Disconnect(channelName, username, reason, s.Sink.Print)
		return true

	case rec.Text == protocol.MarkerJoined:
		// Inert acknowledgement some client versions send; tolerated,
		// never required (spec.md §9 Open Questions).
		return false

	case rec.Text == protocol.MarkerList:
		s.sendChannelList(c)
		return false

	case rec.Kind == protocol.KindCommand:
		return s.dispatchCommand(c, rec.Text, channelName, username)

	case rec.Kind == protocol.KindChat:
		s.dispatchChat(c, rec.Text, channelName, username)
		return false

	default:
		// An unrecognized control marker (stray "$..." record); spec.md
		// §4.2 defines no behavior for this, so it is a no-op rather than
		// being broadcast as chat text.
		return false
	}
}

func (s *Server) sendChannelList(c *connAdapter) {
	for _, snap := range s.Store.Snapshot() {
		c.Send(protocol.ChannelLine(snap.Name, snap.Port, snap.Active, snap.Capacity, snap.Queued))
	}
}

func (s *Server) dispatchCommand(c *connAdapter, line, channelName, username string) bool {
	cmd, _ := protocol.SplitCommand(line)
	switch cmd {
	case protocol.CmdSwitch:
		_, target := firstArg(line)
		if target == "" {
			return false
		}
		if !s.Store.Exists(target) {
			c.Send(protocol.ChannelDoesNotExist(target))
			return false
		}
		if s.Store.IsMember(target, username) {
			c.Send(protocol.UserDup(target))
			return false
		}
		// Design intent per spec.md §4.2/§9: the server only validates;
		// the client itself performs the reconnect to the target's port.
		return false

	case protocol.CmdSend:
		target, _, ok := protocol.ParseTwoWordThenText(line)
		if !ok {
			return false
		}
		if !s.Store.IsActive(channelName, target) {
			c.Send(protocol.NotInChannel(target))
			return false
		}
		// Payload transport is out of scope (spec.md §1, §9); forward the
		// framing only.
		s.Store.SendTo(channelName, target, line)
		return false

	case protocol.CmdWhisper:
		target, text, ok := protocol.ParseTwoWordThenText(line)
		if !ok {
			return false
		}
		if target == username {
			c.Send(protocol.WhisperReceived(username, text))
			return false
		}
		if !s.Store.IsActive(channelName, target) {
			c.Send(protocol.NotInChannel(target))
			return false
		}
		s.Store.SendTo(channelName, target, protocol.WhisperReceived(username, text))
		c.Send(protocol.WhisperLine(username, target, text))
		s.Sink.Print(protocol.WhisperLine(username, target, text))
		return false

	default:
		// Admin-only commands (/kick, /empty, /mute, /shutdown) are scoped
		// to the server's own standard input (spec.md §4.6); a regular
		// client sending one over its connection is simply not a case
		// spec.md §4.2 defines dispatch for, so it is a silent no-op here.
		return false
	}
}

func firstArg(line string) (cmd, rest string) {
	for i, r := range line {
		if r == ' ' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}

func (s *Server) dispatchChat(c *connAdapter, text, channelName, username string) {
	status, ok := s.Store.MemberStatus(channelName, username)
	if !ok {
		return
	}
	switch status {
	case chatstore.StatusInQueue:
		return // silently dropped (spec.md §4.2)
	case chatstore.StatusMuted:
		if muted, remaining := s.Store.MuteInfo(channelName, username, time.Now()); muted {
			c.Send(protocol.StillMuted(int64(remaining.Seconds()) + 1))
			return
		}
		fallthrough
	default:
		s.Store.Broadcast(channelName, protocol.ChatLine(username, text), s.Sink.Print)
	}
}

// disconnectAFK implements the idle-timeout branch of spec.md §4.2: notify
// the channel, tell the expiree, then Disconnect with the AFK reason
// (which suppresses the duplicate "has left" broadcast).
func (s *Server) disconnectAFK(channelName, username string) {
	s.Store.BroadcastExcluding(channelName, protocol.AFKBroadcast(username, channelName), username)
	s.Sink.Print(protocol.AFKBroadcast(username, channelName))
	s.Store.SendTo(channelName, username, protocol.MarkerAFK)
	s.Store.Disconnect(channelName, username, chatstore.ReasonAFK, s.Sink.Print)
}
