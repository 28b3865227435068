// Command chatserver hosts several independently-configured, fixed-capacity
// chat channels over plain TCP, each on its own port, plus a small
// operator-facing monitoring surface (REST API, console feed, audit log).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chatserver/internal/audit"
	"chatserver/internal/chatstore"
)

func main() {
	opts := ParseArgs(os.Args[1:])
	descs := LoadChannelTable(opts.ConfigFile)

	sink := NewSink(os.Stdout)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var auditLog *audit.Log
	if opts.AuditDBPath != "" {
		var err error
		auditLog, err = audit.Open(opts.AuditDBPath, log)
		if err != nil {
			log.Error("audit log unavailable, continuing without persistence", "err", err)
			auditLog = nil
		} else {
			defer auditLog.Close()
		}
	}

	st := chatstore.New(descs, log)

	srv := &Server{
		Store: st,
		Sink:  sink,
		Audit: auditLog,
		Log:   log,
		AFK:   time.Duration(opts.AFKTimeSeconds) * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.RunMetrics(time.Duration(opts.MetricsInterval)*time.Second, ctx.Done())
	go srv.RunMuteClock(time.Second, ctx.Done())

	if opts.MonitorAddr != "" {
		mon := NewMonitorAPI(srv)
		go mon.Run(ctx, opts.MonitorAddr)
		log.Info("monitoring api listening", "addr", opts.MonitorAddr)
	}

	ls := NewListenerSet(sink, log, srv.HandleConnection)
	ls.Run(descs)

	// RunAdminConsole blocks the main goroutine, as in the source: the
	// server's main thread reads stdin directly, with no separate admin
	// task. /shutdown terminates the whole process immediately — there is
	// no graceful shutdown path for the chat protocol itself (spec.md §5).
	srv.RunAdminConsole(os.Stdin)

	fmt.Fprintln(os.Stdout, "Server is disconnected.")
}
