package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MonitorAPI is the read-only HTTP surface of SPEC_FULL.md Component 11:
// /health, /api/channels, /api/metrics, /api/audit. It cannot mutate
// channel state — every handler reads from the store's snapshot/metrics
// accessors or the audit log. The one side effect is that /api/metrics
// resets the store's broadcast counter, the same counter the metrics
// logger reads. Grounded on the corpus's
// own api.go Echo wiring (RequestLoggerWithConfig plus middleware.Recover()).
type MonitorAPI struct {
	server *Server
	echo   *echo.Echo
}

// NewMonitorAPI constructs the Echo app and registers its routes.
func NewMonitorAPI(s *Server) *MonitorAPI {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.Log.Debug("monitor request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	m := &MonitorAPI{server: s, echo: e}
	m.registerRoutes()
	return m
}

func (m *MonitorAPI) registerRoutes() {
	m.echo.GET("/health", m.handleHealth)
	m.echo.GET("/api/channels", m.handleChannels)
	m.echo.GET("/api/metrics", m.handleMetrics)
	m.echo.GET("/api/audit", m.handleAudit)
	m.echo.GET("/feed", m.server.handleFeed)
}

// Run starts the Echo server on addr and blocks until ctx is cancelled.
func (m *MonitorAPI) Run(ctx context.Context, addr string) {
	go func() {
		if err := m.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			m.server.Log.Error("monitor api server error", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.echo.Shutdown(shutCtx); err != nil {
		m.server.Log.Error("monitor api shutdown error", "err", err)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (m *MonitorAPI) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type channelResponse struct {
	Name     string `json:"name"`
	Port     int    `json:"port"`
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
	Queued   int    `json:"queued"`
}

func (m *MonitorAPI) handleChannels(c echo.Context) error {
	snap := m.server.Store.Snapshot()
	out := make([]channelResponse, 0, len(snap))
	for _, ch := range snap {
		out = append(out, channelResponse{
			Name: ch.Name, Port: ch.Port, Capacity: ch.Capacity,
			Active: ch.Active, Queued: ch.Queued,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type metricsResponse struct {
	Channels    int    `json:"channels"`
	TotalActive int    `json:"total_active"`
	TotalQueued int    `json:"total_queued"`
	Broadcasts  uint64 `json:"broadcasts_since_last_read"`
}

func (m *MonitorAPI) handleMetrics(c echo.Context) error {
	met := m.server.Store.ReadAndResetMetrics()
	return c.JSON(http.StatusOK, metricsResponse{
		Channels:    met.Channels,
		TotalActive: met.TotalActive,
		TotalQueued: met.TotalQueued,
		Broadcasts:  met.BroadcastsSince,
	})
}

type auditEntryResponse struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Channel   string `json:"channel"`
	Target    string `json:"target"`
	Detail    string `json:"detail"`
}

// handleAudit serves the most recent admin-action audit entries, the
// monitoring-API read path SPEC_FULL.md §2 Component 9 promises. Accepts
// an optional "n" query parameter (default 50); returns an empty array,
// never an error, when audit persistence is disabled (--audit-db="").
func (m *MonitorAPI) handleAudit(c echo.Context) error {
	n := 50
	if raw := c.QueryParam("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	entries := m.server.Audit.Recent(n)
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Actor:     e.Actor,
			Action:    string(e.Action),
			Channel:   e.Channel,
			Target:    e.Target,
			Detail:    e.Detail,
		})
	}
	return c.JSON(http.StatusOK, out)
}
