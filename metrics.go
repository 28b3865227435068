package main

import (
	"time"
)

// RunMetrics logs aggregate store counters every interval, in the shape
// of the corpus's own RunMetrics ticker: channel/active/queued counts
// plus messages broadcast since the counter was last read (by this ticker
// or by the monitoring API's /api/metrics).
func (s *Server) RunMetrics(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m := s.Store.ReadAndResetMetrics()
			s.Log.Info("metrics",
				"channels", m.Channels,
				"active", m.TotalActive,
				"queued", m.TotalQueued,
				"broadcasts", m.BroadcastsSince,
			)
		case <-done:
			return
		}
	}
}
