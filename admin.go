package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"chatserver/internal/audit"
	"chatserver/internal/chatstore"
	"chatserver/internal/protocol"
)

// RunAdminConsole reads administrative commands from r (the server's
// standard input) and executes them under the store's own lock discipline
// (spec.md §4.6). A bare empty line is treated as /shutdown, matching
// original_source/chatserver.py's `while line := input()` loop, which
// falls out (and shuts down) the moment input() returns an empty string.
func (s *Server) RunAdminConsole(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			s.shutdown()
			return
		}
		cmd, args := protocol.SplitCommand(line)
		switch cmd {
		case protocol.CmdShutdown:
			if len(args) != 0 {
				fmt.Fprintln(os.Stdout, "Usage: /shutdown")
				continue
			}
			s.shutdown()
			return
		case protocol.CmdKick:
			s.adminKick(args)
		case protocol.CmdEmpty:
			s.adminEmpty(args)
		case protocol.CmdMute:
			s.adminMute(args)
		default:
			// Unrecognized admin input is silently ignored; spec.md §4.6
			// only defines Usage errors for the four named commands.
		}
	}
	// stdin closed (EOF): the source's admin loop simply falls through
	// without shutting down on its own; mirror that by returning quietly.
}

func (s *Server) shutdown() {
	s.Sink.Print(protocol.ShutdownNotice)
	s.Audit.Record("console", audit.ActionShutdown, "", "", "")
	os.Exit(0)
}

func (s *Server) adminKick(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stdout, "Usage: /kick <channel> <user>")
		return
	}
	channelName, user := args[0], args[1]
	if !s.Store.Exists(channelName) {
		fmt.Fprintln(os.Stdout, "Usage: /kick <channel> <user>")
		return
	}
	if !s.Store.IsActive(channelName, user) {
		fmt.Fprintln(os.Stdout, "Usage: /kick <channel> <user>")
		return
	}
	s.Sink.Print(protocol.KickedSinkLine(user))
	s.Store.SendTo(channelName, user, protocol.MarkerKick)
	s.Audit.Record("console", audit.ActionKick, channelName, user, "")
}

func (s *Server) adminEmpty(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stdout, "Usage: /empty <channel>")
		return
	}
	channelName := args[0]
	if !s.Store.Exists(channelName) {
		fmt.Fprintln(os.Stdout, "Usage: /empty <channel>")
		return
	}
	s.Sink.Print(protocol.EmptiedSinkLine(channelName))
	emptied := s.Store.EmptyChannel(channelName)
	s.Audit.Record("console", audit.ActionEmpty, channelName, "", fmt.Sprintf("%d users", len(emptied)))
}

func (s *Server) adminMute(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(os.Stdout, "Usage: /mute <channel> <user> <duration>")
		return
	}
	channelName, user, durStr := args[0], args[1], args[2]
	duration, err := strconv.Atoi(durStr)
	if err != nil || duration <= 0 {
		fmt.Fprintln(os.Stdout, "Usage: /mute <channel> <user> <duration>")
		return
	}
	if !s.Store.Exists(channelName) {
		fmt.Fprintln(os.Stdout, "Usage: /mute <channel> <user> <duration>")
		return
	}
	until := time.Now().Add(time.Duration(duration) * time.Second)
	if !s.Store.Mute(channelName, user, until) {
		fmt.Fprintln(os.Stdout, "Usage: /mute <channel> <user> <duration>")
		return
	}
	s.Sink.Print(protocol.MutedSinkLine(user, int64(duration)))
	s.Store.SendTo(channelName, user, protocol.MutedNotice(int64(duration)))
	s.Store.BroadcastExcluding(channelName, protocol.MutedBroadcast(user, int64(duration)), user)
	s.Audit.Record("console", audit.ActionMute, channelName, user, fmt.Sprintf("%ds", duration))
}

// RunMuteClock periodically flips expired mutes back to InChannel, in the
// style of the corpus's RunMetrics ticker. The lazy check inside
// Store.MuteInfo is what actually guarantees correctness; this loop only
// keeps Status current for observers like the monitoring API.
func (s *Server) RunMuteClock(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Store.ExpireMutes(time.Now())
		case <-done:
			return
		}
	}
}
