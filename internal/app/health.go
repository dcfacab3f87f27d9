package app

import (
	"time"

	"commentwatch/internal/eventbus"
	"commentwatch/internal/metrics"
	"commentwatch/internal/monitor"
	"commentwatch/internal/notifier"
	"commentwatch/internal/runtime/supervisor"
	"commentwatch/internal/status"
)

// Health is the /healthz body.
type Health struct {
	Status     string                 `json:"status"`
	Uptime     string                 `json:"uptime"`
	Monitor    monitor.Stats          `json:"monitor"`
	Sink       string                 `json:"sink"`
	Recent     []notifier.HistoryItem `json:"recent_alerts"`
	Metrics    metrics.Summary        `json:"metrics"`
	Runtime    supervisor.Snapshot    `json:"runtime"`
	LastStatus *status.Report         `json:"last_status,omitempty"`
	BusDropped uint64                 `json:"bus_dropped"`
	LogDropped uint64                 `json:"log_dropped"`
}

// Health reports "ok" while the feed is RUNNING, "degraded" during BACKOFF
// and "failing" once a supervised task published an error.
func (a *App) Health() Health {
	h := Health{
		Status:  "ok",
		Uptime:  time.Since(a.started).Round(time.Second).String(),
		Monitor: a.mon.Stats(),
		Sink:    a.notif.SinkName(),
		Recent:  a.notif.Recent(),
		Metrics: metrics.Snapshot(),
	}
	if h.Monitor.State == monitor.Backoff.String() {
		h.Status = "degraded"
	}
	if a.sup != nil {
		h.Runtime = a.sup.Snapshot()
		if h.Runtime.FirstError != "" {
			h.Status = "failing"
		}
	}
	if a.status != nil {
		h.LastStatus = a.status.Last()
	}
	h.BusDropped = eventbus.Dropped(a.bus)
	if a.logs != nil {
		h.LogDropped = a.logs.Dropped()
	}
	return h
}
