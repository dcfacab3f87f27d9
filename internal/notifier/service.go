// Package notifier delivers alerts to a Sink with a timeout and a token-bucket
// rate limit. Delivery is best-effort: one attempt, failures are logged and
// returned, never retried.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"commentwatch/internal/alert"
	"commentwatch/internal/eventbus"
	"commentwatch/internal/metrics"
	logx "commentwatch/pkg/logx"
)

// Notifier is safe for concurrent use.
type Notifier struct {
	cfg     Config
	sink    Sink
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

// New returns a Notifier. A nil sink is allowed: alerts are then skipped with a warning.
func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus) *Notifier {
	cfg = cfg.withDefaults()
	return &Notifier{
		cfg:     cfg,
		sink:    sink,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// SinkName returns the configured sink name, or "none".
func (n *Notifier) SinkName() string {
	if n.sink == nil {
		return "none"
	}
	return n.sink.Name()
}

// Notify sends one alert.
func (n *Notifier) Notify(ctx context.Context, a alert.Alert) error {
	ev := eventbus.AlertEvent{EventID: a.EventID, Channel: a.Channel, Trigger: a.Trigger, Sink: n.SinkName()}

	if n.sink == nil {
		n.log.Warn("sink not configured; skipping alert", logx.String("event_id", a.EventID), logx.String("trigger", a.Trigger))
		metrics.RecordAlert(metrics.OutcomeSkipped, 0)
		n.remember(a, metrics.OutcomeSkipped, nil)
		eventbus.Publish(n.bus, eventbus.AlertSkipped, ev)
		return nil
	}

	err := n.deliver(ctx, a.Text())
	switch {
	case err == nil:
		n.log.Info("alert sent", logx.String("event_id", a.EventID), logx.String("channel", a.Channel), logx.String("trigger", a.Trigger), logx.String("sink", n.sink.Name()))
		n.remember(a, metrics.OutcomeSent, nil)
		eventbus.Publish(n.bus, eventbus.AlertSent, ev)
		return nil
	case errors.Is(err, ErrRateLimited):
		n.log.Warn("alert dropped: rate limited", logx.String("event_id", a.EventID), logx.Duration("timeout", n.cfg.Timeout))
		n.remember(a, metrics.OutcomeRateLimited, err)
	default:
		n.log.Warn("alert delivery failed", logx.String("event_id", a.EventID), logx.String("sink", n.sink.Name()), logx.Err(err))
		n.remember(a, metrics.OutcomeFailed, err)
	}
	ev.Error = err.Error()
	eventbus.Publish(n.bus, eventbus.AlertFailed, ev)
	return err
}

// SendText delivers free-form text under the same timeout and rate limit.
// Status reports use it.
func (n *Notifier) SendText(ctx context.Context, text string) error {
	if n.sink == nil {
		return nil
	}
	return n.deliver(ctx, text)
}

func (n *Notifier) deliver(ctx context.Context, text string) error {
	cctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	if err := n.limiter.Wait(cctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordAlert(metrics.OutcomeRateLimited, 0)
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	start := time.Now()
	err := n.sink.Send(cctx, text)
	dur := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordAlert(metrics.OutcomeFailed, dur)
		return fmt.Errorf("%w: %s: %w", ErrSend, n.sink.Name(), err)
	}
	metrics.RecordAlert(metrics.OutcomeSent, dur)
	return nil
}

// Recent returns the latest delivery attempts, oldest first.
func (n *Notifier) Recent() []HistoryItem {
	n.hmu.Lock()
	out := append([]HistoryItem(nil), n.history...)
	n.hmu.Unlock()
	return out
}

func (n *Notifier) remember(a alert.Alert, outcome string, err error) {
	it := HistoryItem{At: time.Now(), EventID: a.EventID, Trigger: a.Trigger, Outcome: outcome}
	if err != nil {
		it.Error = err.Error()
	}
	n.hmu.Lock()
	n.history = append(n.history, it)
	if len(n.history) > n.cfg.HistorySize {
		n.history = n.history[len(n.history)-n.cfg.HistorySize:]
	}
	n.hmu.Unlock()
}
