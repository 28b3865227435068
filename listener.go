package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sync/errgroup"

	"chatserver/internal/chatstore"
)

// ListenerSet binds one TCP listener per channel and barrier-synchronizes
// their accept loops: spec.md §4.7 requires that no connection handler run
// until every port is bound. The source busy-waits on a decrementing
// counter (§9 Design Notes flags this as a bug); this implementation uses
// a close(ready)-channel barrier instead, the idiomatic Go replacement.
type ListenerSet struct {
	sink     *Sink
	log      *slog.Logger
	onAccept func(conn net.Conn, channelName string)
}

// NewListenerSet builds a ListenerSet. onAccept is invoked once per
// accepted connection, after the barrier has released, with the name of
// the channel the listener belongs to.
func NewListenerSet(sink *Sink, log *slog.Logger, onAccept func(net.Conn, string)) *ListenerSet {
	return &ListenerSet{sink: sink, log: log, onAccept: onAccept}
}

// bindError names the port a listen attempt failed on, so Run can report
// it after errgroup collects the first failure out of several concurrent
// binds.
type bindError struct {
	port int
	err  error
}

func (e *bindError) Error() string {
	return fmt.Sprintf("port %d: %v", e.port, e.err)
}

// Run binds every descriptor's port concurrently via errgroup. On any bind
// failure it prints "Error: unable to listen on port <p>." to stderr and
// exits 6, matching spec.md §4.7 exactly. Once every port is bound it
// prints one "Channel ... is created on port ..." line per channel, in
// configuration order, then "Welcome to chatserver.", then releases the
// barrier. Run returns once every accept loop has been spawned (it does
// not block on them — they run for the lifetime of the process); the
// caller is free to move on to its own foreground work (the admin
// console) immediately after.
func (ls *ListenerSet) Run(descs []chatstore.ChannelDescriptor) {
	listeners := make([]net.Listener, len(descs))
	g, gCtx := errgroup.WithContext(context.Background())
	for i, d := range descs {
		i, d := i, d
		g.Go(func() error {
			lc := net.ListenConfig{}
			l, err := lc.Listen(gCtx, "tcp", fmt.Sprintf(":%d", d.Port))
			if err != nil {
				return &bindError{port: d.Port, err: err}
			}
			listeners[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var be *bindError
		if errors.As(err, &be) {
			fmt.Fprintf(os.Stderr, "Error: unable to listen on port %d.\n", be.port)
		} else {
			fmt.Fprintln(os.Stderr, "Error: unable to listen on port.")
		}
		os.Exit(6)
	}

	for _, d := range descs {
		ls.sink.Print(fmt.Sprintf("Channel %q is created on port %d, with a capacity of %d.", d.Name, d.Port, d.Capacity))
	}
	ls.sink.Print("Welcome to chatserver.")

	ready := make(chan struct{})
	for i, d := range descs {
		go func(l net.Listener, name string) {
			<-ready
			ls.acceptLoop(l, name)
		}(listeners[i], d.Name)
	}
	close(ready)
}

func (ls *ListenerSet) acceptLoop(l net.Listener, channelName string) {
	for {
		conn, err := l.Accept()
		if err != nil {
			ls.log.Debug("accept failed", "channel", channelName, "err", err)
			return
		}
		go ls.onAccept(conn, channelName)
	}
}
