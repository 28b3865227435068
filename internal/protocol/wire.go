package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Control marker prefixes (spec.md §4.1, §6.3). These are the literal
// tokens exchanged over the wire and must not be altered.
const (
	MarkerUser       = "$User:"
	MarkerQuit       = "$Quit"
	MarkerQuitKicked = "$Quit-kicked"
	MarkerList       = "$List"
	MarkerJoined     = "$Joined"
	MarkerUserError  = "$UserError:"
	MarkerUserDup    = "$UserDup:"
	Marker01Join     = "$01-JoinSuccess:"
	Marker02Join     = "$02-JoinSuccess:"
	Marker01Queue    = "$01-InQueue:"
	Marker02Queue    = "$02-InQueue:"
	MarkerKick       = "$Kick"
	MarkerEmpty      = "$Empty"
	MarkerAFK        = "$AFK"
)

// Command names (spec.md §4.1, §4.2, §4.6).
const (
	CmdList     = "/list"
	CmdSwitch   = "/switch"
	CmdSend     = "/send"
	CmdWhisper  = "/whisper"
	CmdQuit     = "/quit"
	CmdKick     = "/kick"
	CmdEmpty    = "/empty"
	CmdMute     = "/mute"
	CmdShutdown = "/shutdown"
)

// User builds a "$User: <u>" hello record.
func User(username string) string { return MarkerUser + " " + username }

// UserError builds a "$UserError: <channel>" record.
func UserError(channel string) string { return MarkerUserError + " " + channel }

// UserDup builds a "$UserDup: <channel>" record.
func UserDup(channel string) string { return MarkerUserDup + " " + channel }

// JoinSuccess01 builds the initial-admission join confirmation.
func JoinSuccess01(channel string) string { return Marker01Join + " " + channel }

// JoinSuccess02 builds the later-promotion join confirmation.
func JoinSuccess02(channel string) string { return Marker02Join + " " + channel }

// InQueue01 builds the initial queue-position record.
func InQueue01(position int) string { return fmt.Sprintf("%s %d", Marker01Queue, position) }

// InQueue02 builds the post-departure queue-position record.
func InQueue02(position int) string { return fmt.Sprintf("%s %d", Marker02Queue, position) }

// ServerMessage wraps text in the "[Server Message] ..." display envelope.
func ServerMessage(text string) string { return "[Server Message] " + text }

// ChatLine wraps text in the "[<user>] ..." broadcast envelope.
func ChatLine(user, text string) string { return fmt.Sprintf("[%s] %s", user, text) }

// WhisperLine wraps text in the "[<user> whispers to <target>] ..." envelope.
func WhisperLine(from, target, text string) string {
	return fmt.Sprintf("[%s whispers to %s] %s", from, target, text)
}

// WhisperReceived wraps text in the "[<user> whispers to you] ..." envelope.
func WhisperReceived(from, text string) string {
	return fmt.Sprintf("[%s whispers to you] %s", from, text)
}

// ChannelLine formats one "/list" line for a single channel.
func ChannelLine(name string, port, active, capacity, queued int) string {
	return fmt.Sprintf("[Channel] %s %d Capacity: %d/%d, Queue: %d", name, port, active, capacity, queued)
}

// JoinedBroadcast formats the join-notice broadcast line.
func JoinedBroadcast(user, channel string) string {
	return ServerMessage(fmt.Sprintf("%s has joined the channel %q.", user, channel))
}

// LeftBroadcast formats the leave-notice broadcast line.
func LeftBroadcast(user string) string {
	return ServerMessage(fmt.Sprintf("%s has left the channel.", user))
}

// AFKBroadcast formats the AFK-departure broadcast line.
func AFKBroadcast(user, channel string) string {
	return ServerMessage(fmt.Sprintf("%s went AFK in channel %q.", user, channel))
}

// StillMuted formats the reply sent to a muted user who tries to chat.
func StillMuted(remainingSeconds int64) string {
	return ServerMessage(fmt.Sprintf("You are still in mute for %d seconds.", remainingSeconds))
}

// MutedNotice formats the notice sent to the user being muted.
func MutedNotice(durationSeconds int64) string {
	return ServerMessage(fmt.Sprintf("You have been muted for %d seconds.", durationSeconds))
}

// MutedBroadcast formats the notice broadcast to the rest of the channel.
func MutedBroadcast(user string, durationSeconds int64) string {
	return ServerMessage(fmt.Sprintf("%s has been muted for %d seconds.", user, durationSeconds))
}

// MutedSinkLine formats the server-sink line printed when an admin mutes a user.
func MutedSinkLine(user string, durationSeconds int64) string {
	return ServerMessage(fmt.Sprintf("Muted %s for %d seconds.", user, durationSeconds))
}

// KickedSinkLine formats the server-sink line printed when an admin kicks a user.
func KickedSinkLine(user string) string { return ServerMessage(fmt.Sprintf("Kicked %s.", user)) }

// EmptiedSinkLine formats the server-sink line printed when a channel is emptied.
func EmptiedSinkLine(channel string) string {
	return ServerMessage(fmt.Sprintf("%q has been emptied.", channel))
}

// NotInChannel formats the "<user> is not in the channel." reply used by
// /send and /whisper target validation.
func NotInChannel(user string) string {
	return ServerMessage(fmt.Sprintf("%s is not in the channel.", user))
}

// ChannelDoesNotExist formats the /switch target-missing reply.
func ChannelDoesNotExist(channel string) string {
	return ServerMessage(fmt.Sprintf("Channel %q does not exist.", channel))
}

// ShutdownNotice is the literal line printed when the server shuts down.
const ShutdownNotice = "[Server Message] Server shuts down."

// RemovedNotice is printed by the client program itself when it is kicked
// or its channel is emptied; the server never sends it.
const RemovedNotice = "[Server Message] You are removed from the channel."

// ParseUserHello extracts the username from a "$User: <u>" record.
// ok is false if the record is not well formed.
func ParseUserHello(line string) (username string, ok bool) {
	if !strings.HasPrefix(line, MarkerUser) {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, MarkerUser))
	if rest == "" {
		return "", false
	}
	return rest, true
}

// ParseArg extracts the value following a single-argument marker such as
// "$UserError: lobby" or "$01-InQueue: 3".
func ParseArg(line, marker string) (string, bool) {
	if !strings.HasPrefix(line, marker) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
}

// ParseInQueue extracts the integer position from an InQueue record.
func ParseInQueue(line, marker string) (int, bool) {
	arg, ok := ParseArg(line, marker)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SplitCommand splits a "/cmd arg1 arg2" record into its command word and
// the remaining argument tokens, split on runs of whitespace.
func SplitCommand(line string) (cmd string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// ParseTwoWordThenText splits "/cmd target rest of text..." after dropping
// the command word, returning a single target token and the free-text
// remainder (which may itself contain spaces). Used by /whisper and /send.
// ok is false if fewer than two fields follow the command.
func ParseTwoWordThenText(line string) (target, text string, ok bool) {
	_, rest, found := strings.Cut(line, " ")
	if !found {
		return "", "", false
	}
	rest = strings.TrimLeft(rest, " ")
	target, text, found = strings.Cut(rest, " ")
	if !found {
		return "", "", false
	}
	text = strings.TrimLeft(text, " ")
	if target == "" || text == "" {
		return "", "", false
	}
	return target, text, true
}
