// Package metrics holds the process-wide Prometheus collectors.
//
// Labels are bounded: triggers come from config, outcomes are fixed sets.
// No event, session, or author identifiers are used as labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeRateLimited = "rate_limited"

	SessionOpened     = "opened"
	SessionOpenFailed = "open_failed"
	SessionFailed     = "failed"

	ErrorDecode   = "decode"
	ErrorPipeline = "pipeline"
)

var (
	eventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentwatch_events_total",
		Help: "Feed events delivered to the pipeline.",
	})
	historyDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentwatch_history_dropped_total",
		Help: "Events dropped because they were created before the session opened.",
	})
	eventErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentwatch_event_errors_total",
		Help: "Per-event errors by kind.",
	}, []string{"kind"})
	matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentwatch_matches_total",
		Help: "Events that matched a trigger.",
	}, []string{"trigger"})
	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentwatch_alerts_total",
		Help: "Alert delivery attempts by outcome.",
	}, []string{"outcome"})
	alertSendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commentwatch_alert_send_duration_seconds",
		Help:    "Duration of sink calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentwatch_sessions_total",
		Help: "Stream session lifecycle transitions by outcome.",
	}, []string{"outcome"})
	supervisorRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentwatch_supervisor_running",
		Help: "1 while the supervisor is RUNNING, 0 during BACKOFF.",
	})
	backoffSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentwatch_backoff_seconds_total",
		Help: "Total time spent in BACKOFF.",
	})
)

func RecordEvent()          { eventsTotal.Inc() }
func RecordHistoryDropped() { historyDroppedTotal.Inc() }

func RecordEventError(kind string) { eventErrorsTotal.WithLabelValues(kind).Inc() }

func RecordMatch(trigger string) { matchesTotal.WithLabelValues(trigger).Inc() }

func RecordAlert(outcome string, seconds float64) {
	alertsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSent || outcome == OutcomeFailed {
		alertSendSeconds.Observe(seconds)
	}
}

func RecordSession(outcome string) { sessionsTotal.WithLabelValues(outcome).Inc() }

// SetRunning records the supervisor state.
func SetRunning(running bool) {
	if running {
		supervisorRunning.Set(1)
		return
	}
	supervisorRunning.Set(0)
}

func RecordBackoff(seconds float64) { backoffSeconds.Add(seconds) }

// Summary is a point-in-time read of the counters, used by status reports.
type Summary struct {
	Events   float64 `json:"events"`
	Matches  float64 `json:"matches"`
	Sent     float64 `json:"alerts_sent"`
	Failed   float64 `json:"alerts_failed"`
	Sessions float64 `json:"sessions_opened"`
	Running  bool    `json:"running"`
}

func Snapshot() Summary {
	return Summary{
		Events:   counterValue(eventsTotal),
		Matches:  vecSum(matchesTotal),
		Sent:     counterValue(alertsTotal.WithLabelValues(OutcomeSent)),
		Failed:   counterValue(alertsTotal.WithLabelValues(OutcomeFailed)),
		Sessions: counterValue(sessionsTotal.WithLabelValues(SessionOpened)),
		Running:  gaugeValue(supervisorRunning) == 1,
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func vecSum(v *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		v.Collect(ch)
		close(ch)
	}()
	var sum float64
	for pm := range ch {
		var m dto.Metric
		if err := pm.Write(&m); err == nil {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
