// Command chatclient is the interactive terminal client for chatserver. It
// implements only the wire protocol described by spec.md §6.2/§6.3; its
// exact reply text and exit codes are grounded on
// original_source/chatclient.py.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"chatserver/internal/protocol"
)

func usageError() {
	fmt.Fprintln(os.Stderr, "Usage: chatclient <port> <username>")
	os.Exit(3)
}

func cantConnect(port string) {
	fmt.Fprintf(os.Stderr, "Error: Unable to connect to port %s.\n", port)
	os.Exit(7)
}

func hasWhitespace(s string) bool {
	return strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t")
}

// status tracks whether the client is currently seated or queued, gating
// /send and /whisper exactly as original_source/chatclient.py does.
type status struct {
	mu  sync.Mutex
	val string
}

func (s *status) set(v string) {
	s.mu.Lock()
	s.val = v
	s.mu.Unlock()
}

func (s *status) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

func main() {
	if len(os.Args) != 3 {
		usageError()
	}
	portArg, username := os.Args[1], os.Args[2]
	if hasWhitespace(portArg) || hasWhitespace(username) {
		usageError()
	}
	port, err := strconv.Atoi(portArg)
	if err != nil || port < 1024 || port > 65535 {
		cantConnect(portArg)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		cantConnect(portArg)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", protocol.User(username)); err != nil {
		cantConnect(portArg)
	}

	var st status
	welcomed := atomic.Bool{}

	go readStdin(conn, username, &st)
	readServer(conn, username, &st, &welcomed)
}

// readStdin forwards terminal input to the server, validating admin-style
// client commands locally exactly as original_source/chatclient.py does.
func readStdin(conn net.Conn, username string, st *status) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line == protocol.CmdQuit {
			fmt.Fprintf(conn, "%s\n", protocol.MarkerQuit)
			os.Exit(0)
		}

		cmd, _ := protocol.SplitCommand(line)
		switch cmd {
		case protocol.CmdQuit:
			fmt.Println("[Server Message] Usage: /quit")
		case protocol.CmdList:
			fmt.Fprintf(conn, "%s\n", protocol.MarkerList)
		case protocol.CmdSwitch:
			fields := strings.Fields(line)
			if len(fields) != 2 || strings.Count(line, " ") != 1 {
				fmt.Println("[Server Message] Usage: /switch channel_name")
				continue
			}
			fmt.Fprintf(conn, "%s\n", line)
		case protocol.CmdSend:
			if st.get() == "in-queue" {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) != 3 || strings.Count(line, " ") != 2 {
				fmt.Println("[Server Message] Usage: /send target_client_username file_path")
				continue
			}
			if fields[1] == username {
				fmt.Println("[Server Message] Cannot send file to yourself.")
				continue
			}
			fmt.Fprintf(conn, "%s\n", line)
		case protocol.CmdWhisper:
			if st.get() == "in-queue" {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) != 3 || strings.Count(line, " ") != 2 {
				fmt.Println("[Server Message] Usage: /whisper receiver_client_username chat_message")
				continue
			}
			if fields[1] == username {
				fmt.Printf("[%s whispers to you] %s\n", username, fields[2])
			}
			fmt.Fprintf(conn, "%s\n", line)
		default:
			if !strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "$") {
				fmt.Fprintf(conn, "%s\n", line)
			}
		}
	}
}

// readServer is the client's main loop: it reads records from the server
// and renders them, following original_source/chatclient.py's dispatch
// exactly (including its exit codes).
func readServer(conn net.Conn, username string, st *status, welcomed *atomic.Bool) {
	reader := protocol.NewReader(conn)
	for {
		rec, err := reader.ReadRecord()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: server connection closed.")
			os.Exit(8)
		}

		switch {
		case strings.HasPrefix(rec.Text, "$UserError"):
			channel, _ := protocol.ParseArg(rec.Text, protocol.MarkerUserError)
			fmt.Printf("[Server Message] Channel %q already has user %s.\n", channel, username)
			os.Exit(2)

		case strings.HasPrefix(rec.Text, "$UserDup"):
			channel, _ := protocol.ParseArg(rec.Text, protocol.MarkerUserDup)
			fmt.Printf("[Server Message] Channel %q already has user %s.\n", channel, username)

		case strings.HasPrefix(rec.Text, "$01-") || strings.HasPrefix(rec.Text, "$02-"):
			if strings.HasPrefix(rec.Text, "$01-") && welcomed.CompareAndSwap(false, true) {
				fmt.Printf("Welcome to chatclient, %s.\n", username)
			}
			handleJoinOrQueue(conn, rec.Text, st)

		case rec.Text == protocol.MarkerKick:
			fmt.Fprintf(conn, "%s\n", protocol.MarkerQuitKicked)
			removed(conn)

		case rec.Text == protocol.MarkerEmpty:
			removed(conn)

		case rec.Text == protocol.MarkerAFK:
			os.Exit(0)

		case !strings.HasPrefix(rec.Text, "$"):
			fmt.Println(rec.Text)
		}
	}
}

func handleJoinOrQueue(conn net.Conn, text string, st *status) {
	if channel, ok := protocol.ParseArg(text, protocol.Marker01Join); ok {
		fmt.Printf("[Server Message] You have joined the channel %q.\n", channel)
		fmt.Fprintf(conn, "%s\n", protocol.MarkerJoined)
		st.set("in-channel")
		return
	}
	if channel, ok := protocol.ParseArg(text, protocol.Marker02Join); ok {
		fmt.Printf("[Server Message] You have joined the channel %q.\n", channel)
		fmt.Fprintf(conn, "%s\n", protocol.MarkerJoined)
		st.set("in-channel")
		return
	}
	if n, ok := protocol.ParseInQueue(text, protocol.Marker01Queue); ok {
		fmt.Printf("[Server Message] You are in the waiting queue and there are %d user(s) ahead of you.\n", n)
		st.set("in-queue")
		return
	}
	if n, ok := protocol.ParseInQueue(text, protocol.Marker02Queue); ok {
		fmt.Printf("[Server Message] You are in the waiting queue and there are %d user(s) ahead of you.\n", n)
		st.set("in-queue")
		return
	}
}

func removed(conn net.Conn) {
	fmt.Println(protocol.RemovedNotice)
	conn.Close()
	os.Exit(0)
}
