// Package status produces a periodic activity summary on a cron schedule.
//
// The reporter counts lifecycle events from the bus between reports, logs the
// summary, and optionally forwards it to the alert sink.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"commentwatch/internal/eventbus"
	"commentwatch/internal/metrics"
	logx "commentwatch/pkg/logx"
)

type Config struct {
	// Schedule is a 5-field cron spec or a descriptor ("@hourly", "@every 6h").
	Schedule string
	Timezone string
	Notify   bool
}

// Sender is the part of *notifier.Notifier used for summaries.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Window counts bus events since the previous report.
type Window struct {
	Since        time.Time `json:"since"`
	Sessions     int       `json:"sessions"`
	Failures     int       `json:"failures"`
	Matches      int       `json:"matches"`
	AlertsSent   int       `json:"alerts_sent"`
	AlertsFailed int       `json:"alerts_failed"`
	Skipped      int       `json:"alerts_skipped"`
}

type Report struct {
	At     time.Time       `json:"at"`
	Window Window          `json:"window"`
	Totals metrics.Summary `json:"totals"`
}

// Text renders the report for chat sinks.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 commentwatch status (%s)\n", r.At.Format("2006-01-02 15:04 MST"))
	w := r.Window
	fmt.Fprintf(&b, "Since %s: %d matches, %d alerts sent, %d failed", w.Since.Format("15:04"), w.Matches, w.AlertsSent, w.AlertsFailed)
	if w.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", w.Skipped)
	}
	fmt.Fprintf(&b, "\nSessions: %d opened, %d failed\n", w.Sessions, w.Failures)
	state := "BACKOFF"
	if r.Totals.Running {
		state = "RUNNING"
	}
	fmt.Fprintf(&b, "Totals: %.0f events, %.0f matches, %.0f sent (%s)", r.Totals.Events, r.Totals.Matches, r.Totals.Sent, state)
	return b.String()
}

type Reporter struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	sender Sender

	parser cron.Parser
	now    func() time.Time

	mu   sync.Mutex
	win  Window
	last *Report
}

func New(cfg Config, bus eventbus.Bus, sender Sender, log logx.Logger) *Reporter {
	return &Reporter{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "status")),
		bus:    bus,
		sender: sender,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

func (r *Reporter) Enabled() bool { return strings.TrimSpace(r.cfg.Schedule) != "" }

// Last returns the most recent report, or nil before the first one.
func (r *Reporter) Last() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run counts bus events and reports on schedule until ctx ends.
func (r *Reporter) Run(ctx context.Context) error {
	sched, err := r.parser.Parse(strings.TrimSpace(r.cfg.Schedule))
	if err != nil {
		return fmt.Errorf("status schedule %q: %w", r.cfg.Schedule, err)
	}
	loc := r.location()

	var events <-chan eventbus.Event
	if r.bus != nil {
		ch, unsub := r.bus.Subscribe(256)
		defer unsub()
		events = ch
	}

	r.mu.Lock()
	r.win = Window{Since: r.now()}
	r.mu.Unlock()

	tick := make(chan struct{}, 1)
	c := cron.New(cron.WithParser(r.parser), cron.WithLocation(loc))
	c.Schedule(sched, cron.FuncJob(func() {
		select {
		case tick <- struct{}{}:
		default:
		}
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	r.log.Info("status reporter started",
		logx.String("schedule", r.cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.Time("next", sched.Next(time.Now().In(loc))),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.observe(ev)
		case <-tick:
			r.report(ctx)
		}
	}
}

func (r *Reporter) location() *time.Location {
	tz := strings.TrimSpace(r.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.log.Warn("invalid status timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (r *Reporter) observe(ev eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Type {
	case eventbus.SessionOpened:
		r.win.Sessions++
	case eventbus.SessionFailed:
		r.win.Failures++
	case eventbus.EventMatched:
		r.win.Matches++
	case eventbus.AlertSent:
		r.win.AlertsSent++
	case eventbus.AlertFailed:
		r.win.AlertsFailed++
	case eventbus.AlertSkipped:
		r.win.Skipped++
	}
}

// report closes the current window, logs it, and sends it if configured.
func (r *Reporter) report(ctx context.Context) Report {
	now := r.now()
	r.mu.Lock()
	rep := Report{At: now, Window: r.win, Totals: metrics.Snapshot()}
	r.win = Window{Since: now}
	r.last = &rep
	r.mu.Unlock()

	r.log.Info("status",
		logx.Int("matches", rep.Window.Matches),
		logx.Int("alerts_sent", rep.Window.AlertsSent),
		logx.Int("alerts_failed", rep.Window.AlertsFailed),
		logx.Int("sessions", rep.Window.Sessions),
		logx.Int("session_failures", rep.Window.Failures),
		logx.Bool("running", rep.Totals.Running),
	)

	if r.cfg.Notify && r.sender != nil {
		if err := r.sender.SendText(ctx, rep.Text()); err != nil {
			r.log.Warn("status send failed", logx.Err(err))
		}
	}
	return rep
}
