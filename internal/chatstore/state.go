// Package chatstore implements the Channel State Store: the mutable,
// lock-guarded record of every channel's active members, waiting queue,
// and per-member status, plus the address index connection handlers use
// to recover their identity. It is the single serialization point spec.md
// §5 requires for state: every mutation, and every send the store itself
// makes to a member (broadcasts, direct sends, queue and promotion notices),
// happens while the store's lock is held. Replies a connection handler
// writes straight to its own connection (join/queue confirmations, /list
// lines, whisper echoes, mute replies) do not go through the store and are
// not serialized by its lock.
package chatstore

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Status is a MemberRecord's lifecycle state (spec.md §3).
type Status int

const (
	StatusInChannel Status = iota
	StatusInQueue
	StatusMuted
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusInChannel:
		return "in-channel"
	case StatusInQueue:
		return "in-queue"
	case StatusMuted:
		return "muted"
	default:
		return "disconnected"
	}
}

// Sender is the minimal send surface a connection handler exposes to the
// store so Broadcast/SendTo can deliver without depending on net.Conn
// directly — this is what makes the store testable with fakes, mirroring
// the teacher corpus's own narrow sender-interface idiom.
type Sender interface {
	Send(line string) error
	RemoteAddr() net.Addr
	Close() error
}

// MemberRecord is one user's presence record within a single channel.
type MemberRecord struct {
	Username string
	Conn     Sender
	Status   Status
	// MuteDeadline is only meaningful when Status == StatusMuted.
	MuteDeadline time.Time
}

// ChannelDescriptor is the immutable, configuration-derived shape of one
// channel (spec.md §3). Descriptors never change after load.
type ChannelDescriptor struct {
	Name     string
	Port     int
	Capacity int
}

// channel is the mutable per-descriptor record (spec.md §3 ChannelState).
type channel struct {
	desc    ChannelDescriptor
	active  []string // ordered, len <= capacity
	waiting []string // ordered FIFO
	members map[string]*MemberRecord
}

// AdmitResult reports the outcome of Admit.
type AdmitResult int

const (
	AdmitSeated AdmitResult = iota
	AdmitQueued
	AdmitDuplicate
)

// DisconnectReason classifies why a member left (spec.md §4.5).
type DisconnectReason int

const (
	ReasonQuit DisconnectReason = iota
	ReasonKicked
	ReasonEmpty
	ReasonAFK
	ReasonAbrupt
)

// addrKey is a peer-address → identity binding (spec.md §3 ClientAddressIndex).
type addrKey struct {
	Username string
	Channel  string
}

// Store is the single global, lock-guarded handle every component shares.
// Every field below except names (fixed at New) and log is only ever
// touched while mu is held.
type Store struct {
	mu       sync.Mutex
	log      *slog.Logger
	names    []string // configuration order, fixed at New
	channels map[string]*channel
	byAddr   map[string]addrKey

	// broadcastCount is a running counter of channel broadcasts (chat lines
	// and join/leave/admin notices), read and reset by ReadAndResetMetrics,
	// which both the metrics logger (Component 10) and the monitoring API's
	// /api/metrics call.
	broadcastCount uint64
}

// New builds a Store from the immutable channel table. Channel names and
// ports are assumed already validated unique by the config loader.
func New(descs []ChannelDescriptor, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		log:      log,
		names:    make([]string, 0, len(descs)),
		channels: make(map[string]*channel, len(descs)),
		byAddr:   make(map[string]addrKey),
	}
	for _, d := range descs {
		s.names = append(s.names, d.Name)
		s.channels[d.Name] = &channel{
			desc:    d,
			members: make(map[string]*MemberRecord),
		}
	}
	return s
}

// ChannelNames returns the configured channel names in the order New
// received their descriptors. The backing slice is built once in New and
// never mutated afterward, so this needs no lock.
func (s *Store) ChannelNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Descriptor returns the descriptor for name, or false if unknown.
func (s *Store) Descriptor(name string) (ChannelDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return ChannelDescriptor{}, false
	}
	return ch.desc, true
}

// Exists reports whether a channel name is configured.
func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[name]
	return ok
}

// bindAddr records the connecting address's identity in the address index.
// Called once admission has decided the member is not a duplicate.
func (s *Store) bindAddr(addr net.Addr, username, channelName string) {
	s.byAddr[addr.String()] = addrKey{Username: username, Channel: channelName}
}

// LookupByAddr recovers (username, channel) for a peer address, used by a
// handler to demultiplex protocol messages after the initial hello.
func (s *Store) LookupByAddr(addr net.Addr) (username, channelName string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byAddr[addr.String()]
	if !ok {
		return "", "", false
	}
	return k.Username, k.Channel, true
}

func (s *Store) forgetAddr(addr net.Addr) {
	delete(s.byAddr, addr.String())
}

// Admit implements spec.md §4.3 atomically under the store lock. sink
// receives the join broadcast line on success (the caller supplies the
// write-through to stdout/feed; the store never imports the sink type to
// keep dependency direction one-way).
func (s *Store) Admit(channelName, username string, conn Sender, sink func(string)) (AdmitResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channels[channelName]
	if _, dup := ch.members[username]; dup {
		// Disconnect deletes the map entry, so any presence here means a
		// live (not-yet-disconnected) member already holds this username.
		return AdmitDuplicate, 0
	}
	s.bindAddr(conn.RemoteAddr(), username, channelName)

	if len(ch.active) < ch.desc.Capacity {
		ch.active = append(ch.active, username)
		ch.members[username] = &MemberRecord{Username: username, Conn: conn, Status: StatusInChannel}
		line := fmt.Sprintf("%s has joined the channel %q.", username, channelName)
		s.broadcastLocked(ch, "[Server Message] "+line, sink, username)
		return AdmitSeated, 0
	}

	position := len(ch.waiting)
	ch.waiting = append(ch.waiting, username)
	ch.members[username] = &MemberRecord{Username: username, Conn: conn, Status: StatusInQueue}
	return AdmitQueued, position
}

// broadcastLocked writes msg to every active member of ch, optionally
// skipping excludeUser, and (if sink != nil) echoes to the server sink.
// Must be called with mu held. Per spec.md §4.4, a send error to one
// recipient must never block delivery to the rest.
func (s *Store) broadcastLocked(ch *channel, msg string, sink func(string), excludeUser string) {
	s.broadcastCount++
	if sink != nil {
		sink(msg)
	}
	for _, u := range ch.active {
		if u == excludeUser {
			continue
		}
		rec := ch.members[u]
		if rec == nil || rec.Conn == nil {
			continue
		}
		if err := rec.Conn.Send(msg); err != nil {
			s.log.Debug("broadcast send failed", "user", u, "channel", ch.desc.Name, "err", err)
		}
	}
}

// Broadcast sends msg to every active member of channelName and echoes to
// the sink (spec.md §4.4 broadcast).
func (s *Store) Broadcast(channelName, msg string, sink func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return
	}
	s.broadcastLocked(ch, msg, sink, "")
}

// BroadcastExcluding sends msg to every active member except excludeUser,
// with no sink echo (spec.md §4.4 broadcast_excluding).
func (s *Store) BroadcastExcluding(channelName, msg, excludeUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return
	}
	s.broadcastLocked(ch, msg, nil, excludeUser)
}

// SendTo sends msg to a single named member of channelName, if present and
// active or queued. Returns false if the user is not found.
func (s *Store) SendTo(channelName, username, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return false
	}
	rec, ok := ch.members[username]
	if !ok || rec.Conn == nil {
		return false
	}
	if err := rec.Conn.Send(msg); err != nil {
		s.log.Debug("direct send failed", "user", username, "channel", channelName, "err", err)
	}
	return true
}

// notifyQueueFromLocked implements spec.md §4.4 notify_queue_from: every
// waiter at position >= fromPos is told its new position. Must be called
// with mu held.
func (s *Store) notifyQueueFromLocked(ch *channel, fromPos int) {
	for p := fromPos; p < len(ch.waiting); p++ {
		u := ch.waiting[p]
		rec := ch.members[u]
		if rec == nil || rec.Conn == nil {
			continue
		}
		msg := fmt.Sprintf("$02-InQueue: %d", p)
		if err := rec.Conn.Send(msg); err != nil {
			s.log.Debug("queue notify failed", "user", u, "channel", ch.desc.Name, "err", err)
		}
	}
}

// MemberStatus returns username's current status within channelName.
func (s *Store) MemberStatus(channelName, username string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return StatusDisconnected, false
	}
	rec, ok := ch.members[username]
	if !ok {
		return StatusDisconnected, false
	}
	return rec.Status, true
}

// IsActive reports whether username is currently seated (InChannel or
// Muted, which counts as InChannel for membership purposes) in channelName.
func (s *Store) IsActive(channelName, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return false
	}
	rec, ok := ch.members[username]
	return ok && (rec.Status == StatusInChannel || rec.Status == StatusMuted)
}

// IsMember reports whether username currently holds a membership record in
// channelName at all — active, muted, or queued. Duplicate-username
// admission (spec.md §4.3) and /switch's target-conflict check (spec.md
// §4.2) are both defined over active[i] ∪ waiting[i], not active[i] alone,
// so callers that need that broader definition should use this instead of
// IsActive.
func (s *Store) IsMember(channelName, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return false
	}
	_, ok := ch.members[username]
	return ok
}

// MuteInfo reports whether username is currently muted in channelName and,
// if so, the remaining duration.
func (s *Store) MuteInfo(channelName, username string, now time.Time) (muted bool, remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return false, 0
	}
	rec, ok := ch.members[username]
	if !ok || rec.Status != StatusMuted {
		return false, 0
	}
	if !now.Before(rec.MuteDeadline) {
		// Lazy expiry: the deadline has passed, so treat as unmuted from
		// here on. The background mute clock will flip Status eventually;
		// this check is what makes correctness independent of its cadence.
		return false, 0
	}
	return true, rec.MuteDeadline.Sub(now)
}

// ExpireMutes flips any Muted member whose deadline has passed back to
// InChannel. Called periodically by the mute clock (Component 8); also
// redundant with the lazy check in MuteInfo, which is the authoritative
// correctness mechanism.
func (s *Store) ExpireMutes(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		for _, rec := range ch.members {
			if rec.Status == StatusMuted && !now.Before(rec.MuteDeadline) {
				rec.Status = StatusInChannel
			}
		}
	}
}

// Mute implements spec.md §4.6 /mute's state mutation. Returns false if
// username is not an active member of channelName.
func (s *Store) Mute(channelName, username string, until time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return false
	}
	rec, ok := ch.members[username]
	if !ok || (rec.Status != StatusInChannel && rec.Status != StatusMuted) {
		return false
	}
	rec.Status = StatusMuted
	rec.MuteDeadline = until
	return true
}

// indexOf returns the index of u in s, or -1.
func indexOf(s []string, u string) int {
	for i, v := range s {
		if v == u {
			return i
		}
	}
	return -1
}

func removeAt(s []string, i int) []string {
	return append(s[:i], s[i+1:]...)
}

// Disconnect implements spec.md §4.5, idempotent under the lock. sink
// receives the "has left"/promotion broadcast lines; AFK and Empty
// departures suppress the "has left" broadcast since the caller already
// announces those departures with their own reason-specific text.
func (s *Store) Disconnect(channelName, username string, reason DisconnectReason, sink func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return
	}
	rec, ok := ch.members[username]
	if !ok || rec.Status == StatusDisconnected {
		return
	}

	if rec.Conn != nil {
		s.forgetAddr(rec.Conn.RemoteAddr())
		rec.Conn.Close()
	}

	wasActive := rec.Status == StatusInChannel || rec.Status == StatusMuted
	if wasActive {
		if i := indexOf(ch.active, username); i >= 0 {
			ch.active = removeAt(ch.active, i)
		}
		if reason != ReasonAFK && reason != ReasonEmpty {
			msg := fmt.Sprintf("[Server Message] %s has left the channel.", username)
			s.broadcastLocked(ch, msg, sink, "")
		}
		promoted := false
		for len(ch.active) < ch.desc.Capacity && len(ch.waiting) > 0 {
			w := ch.waiting[0]
			ch.waiting = ch.waiting[1:]
			wrec := ch.members[w]
			wrec.Status = StatusInChannel
			ch.active = append(ch.active, w)
			if wrec.Conn != nil {
				if err := wrec.Conn.Send(fmt.Sprintf("$02-JoinSuccess: %s", channelName)); err != nil {
					s.log.Debug("promotion send failed", "user", w, "channel", channelName, "err", err)
				}
			}
			joinMsg := fmt.Sprintf("[Server Message] %s has joined the channel %q.", w, channelName)
			s.broadcastLocked(ch, joinMsg, sink, "")
			promoted = true
		}
		if promoted {
			// Everyone still waiting moved up; tell them their new positions.
			s.notifyQueueFromLocked(ch, 0)
		}
	} else if rec.Status == StatusInQueue {
		if i := indexOf(ch.waiting, username); i >= 0 {
			ch.waiting = removeAt(ch.waiting, i)
			s.notifyQueueFromLocked(ch, i)
		}
	}

	rec.Status = StatusDisconnected
	delete(ch.members, username)
}

// EmptyChannel implements spec.md §4.6 /empty: disconnect every active
// member with $Empty, clear active, then promote from the queue up to
// capacity. Returns the usernames that were emptied, for audit logging.
func (s *Store) EmptyChannel(channelName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[channelName]
	if ch == nil {
		return nil
	}

	emptied := append([]string(nil), ch.active...)
	for _, u := range emptied {
		rec := ch.members[u]
		if rec == nil {
			continue
		}
		if rec.Conn != nil {
			if err := rec.Conn.Send("$Empty"); err != nil {
				s.log.Debug("empty send failed", "user", u, "channel", channelName, "err", err)
			}
			s.forgetAddr(rec.Conn.RemoteAddr())
			rec.Conn.Close()
		}
		rec.Status = StatusDisconnected
		delete(ch.members, u)
	}
	ch.active = ch.active[:0]

	for len(ch.active) < ch.desc.Capacity && len(ch.waiting) > 0 {
		w := ch.waiting[0]
		ch.waiting = ch.waiting[1:]
		wrec := ch.members[w]
		wrec.Status = StatusInChannel
		ch.active = append(ch.active, w)
		if wrec.Conn != nil {
			if err := wrec.Conn.Send(fmt.Sprintf("$02-JoinSuccess: %s", channelName)); err != nil {
				s.log.Debug("promotion send failed", "user", w, "channel", channelName, "err", err)
			}
		}
		joinMsg := fmt.Sprintf("[Server Message] %s has joined the channel %q.", w, channelName)
		s.broadcastLocked(ch, joinMsg, nil, "")
	}

	return emptied
}

// ChannelSnapshot is an atomic point-in-time read of one channel's counts,
// used by /list and the monitoring API (spec.md §8: "/list reports counts
// ... sampled atomically").
type ChannelSnapshot struct {
	Name     string
	Port     int
	Capacity int
	Active   int
	Queued   int
}

// Snapshot returns one ChannelSnapshot per configured channel, in
// configuration order, each read under the same lock acquisition so no
// two counts straddle an intervening mutation.
func (s *Store) Snapshot() []ChannelSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelSnapshot, 0, len(s.names))
	for _, name := range s.names {
		ch := s.channels[name]
		out = append(out, ChannelSnapshot{
			Name:     ch.desc.Name,
			Port:     ch.desc.Port,
			Capacity: ch.desc.Capacity,
			Active:   len(ch.active),
			Queued:   len(ch.waiting),
		})
	}
	return out
}

// Metrics is the aggregate counter shape read by the metrics logger and
// the monitoring API (SPEC_FULL.md Component 10/11).
type Metrics struct {
	Channels        int
	TotalActive     int
	TotalQueued     int
	BroadcastsSince uint64
}

// ReadAndResetMetrics returns the current aggregate counters and resets
// the broadcast counter, matching the teacher's Room.Stats "since last
// tick" shape.
func (s *Store) ReadAndResetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{Channels: len(s.channels), BroadcastsSince: s.broadcastCount}
	for _, ch := range s.channels {
		m.TotalActive += len(ch.active)
		m.TotalQueued += len(ch.waiting)
	}
	s.broadcastCount = 0
	return m
}
