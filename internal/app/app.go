// Package app wires config, feed, matcher, notifier and the monitor loop into
// one process and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"commentwatch/internal/config"
	"commentwatch/internal/eventbus"
	"commentwatch/internal/match"
	"commentwatch/internal/monitor"
	"commentwatch/internal/notifier"
	"commentwatch/internal/observability/ops"
	"commentwatch/internal/runtime/supervisor"
	"commentwatch/internal/status"
	logx "commentwatch/pkg/logx"
	"commentwatch/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	notif  *notifier.Notifier
	mon    *monitor.Supervisor
	ops    *ops.Server
	status *status.Reporter
	sd     *systemd.Notifier

	started time.Time
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	sink, err := mapSink(cfg)
	if err != nil {
		return nil, err
	}

	// The alert sink doubles as the remote log destination.
	var sender logx.Sender
	if sink != nil {
		sender = sink
	}
	logSvc, log := logx.New(cfg.Logging.Logx(), sender)
	cfgm.SetLogger(log)

	bus := eventbus.New()

	src, err := mapFeedSource(cfg, log)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(mapNotifierConfig(cfg), sink, log, bus)
	matcher := match.New(cfg.Triggers)

	mon, err := monitor.New(mapMonitorConfig(cfg), monitor.Deps{
		Source:   src,
		Matcher:  matcher,
		Notifier: notif,
		Log:      log,
		Bus:      bus,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		bus:   bus,
		notif: notif,
		mon:   mon,
		sd:    systemd.New(cfg.Systemd.Notify, log),
	}

	if rep := status.New(mapStatusConfig(cfg), bus, notif, log); rep.Enabled() {
		a.status = rep
	}
	if cfg.Ops.Enabled {
		srv, err := ops.New(mapOpsConfig(cfg), func() any { return a.Health() }, log)
		if err != nil {
			return nil, err
		}
		a.ops = srv
	}

	if matcher.Len() < len(cfg.Triggers) {
		a.log.Warn("blank triggers ignored", logx.Int("configured", len(cfg.Triggers)), logx.Int("active", matcher.Len()))
	}
	return a, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("monitor", a.mon.Run)

	if a.ops != nil {
		// Optional observability; a broken listener must not stop the monitor.
		a.sup.GoRestart("ops.http", a.ops.Run,
			supervisor.WithPublishFirstError(true),
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
	}
	if a.status != nil {
		a.sup.GoRestart("status", a.status.Run, supervisor.WithMaxRestarts(3))
	}

	a.goEventLog()
	a.goConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, func() bool { return c.Err() == nil })
	})
	a.sd.Ready()

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.String("sink", a.notif.SinkName()),
		logx.Bool("ops", a.ops != nil),
		logx.Bool("status", a.status != nil),
	)
	return nil
}

// goEventLog logs lifecycle events at debug level and mirrors the monitor
// state into the systemd STATUS line.
func (a *App) goEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
				switch e.Type {
				case eventbus.SessionOpened:
					a.sd.Status("RUNNING")
				case eventbus.SupervisorBackoff:
					if se, ok := e.Data.(eventbus.SessionEvent); ok {
						a.sd.Status(fmt.Sprintf("BACKOFF %s: %s", se.Delay, se.Error))
					}
				}
			}
		}
	})
}

// goConfigReload applies logging changes live. Every other section is
// reported as needing a restart.
func (a *App) goConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// keep only the newest queued config
			drain:
				for {
					select {
					case newer, ok := <-sub:
						if !ok {
							return
						}
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}

				ch := config.Diff(lastApplied, newCfg)
				lastApplied = newCfg
				if ch.Empty() {
					a.log.Info("config reloaded (no changes)")
					continue
				}
				if ch.LoggingChanged() {
					a.logs.Apply(newCfg.Logging.Logx())
				}
				if len(ch.RestartRequired) > 0 {
					a.log.Warn("config changed; restart required for changes to take effect",
						logx.String("sections", strings.Join(ch.RestartRequired, ",")))
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	a.sup.Cancel()

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	err := a.sup.Wait(waitCtx)
	if err != nil && waitCtx.Err() != nil {
		a.log.Warn("stop deadline reached; some tasks still running", logx.Err(err))
	}

	a.log.Info("stopped", logx.Duration("uptime", time.Since(a.started).Round(time.Second)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if reason == StopFatalError {
		return a.sup.Err()
	}
	return nil
}
