package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "commentwatch/pkg/logx"
)

// Validate reports every problem at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	// feed
	if d := strings.ToLower(strings.TrimSpace(cfg.Feed.Driver)); d != "" && d != "reddit" {
		add("feed.driver: unsupported %q", cfg.Feed.Driver)
	}
	if len(nonBlank(cfg.Feed.Channels)) == 0 {
		add("feed.channels: at least one channel is required")
	}
	if (cfg.Feed.ClientID == "") != (cfg.Feed.ClientSecret == "") {
		add("feed: client_id and client_secret must be set together")
	}
	if cfg.Feed.SeenCapacity < 0 {
		add("feed.seen_capacity: must be >= 0")
	}
	dur("feed.poll_interval", cfg.Feed.PollInterval)
	dur("feed.request_timeout", cfg.Feed.RequestTimeout)

	if len(nonBlank(cfg.Triggers)) == 0 {
		add("triggers: at least one trigger is required")
	}

	dur("monitor.backoff", cfg.Monitor.Backoff)
	dur("monitor.backoff_jitter", cfg.Monitor.BackoffJitter)
	dur("monitor.decode_pause", cfg.Monitor.DecodePause)

	// sink
	switch strings.ToLower(strings.TrimSpace(cfg.Sink.Driver)) {
	case "", "none":
	case "webhook":
		if strings.TrimSpace(cfg.Sink.URL) == "" {
			add("sink.url: required for webhook driver")
		} else if u, err := url.Parse(cfg.Sink.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("sink.url: must be an absolute http(s) URL")
		}
	case "telegram":
		if strings.TrimSpace(cfg.Sink.Telegram.Token) == "" {
			add("sink.telegram.token: required for telegram driver")
		}
		if cfg.Sink.Telegram.ChatID == 0 {
			add("sink.telegram.chat_id: required for telegram driver")
		}
	default:
		add("sink.driver: unsupported %q", cfg.Sink.Driver)
	}
	if cfg.Sink.RatePerSec < 0 {
		add("sink.rate_per_sec: must be >= 0")
	}
	if cfg.Sink.Burst < 0 {
		add("sink.burst: must be >= 0")
	}
	for _, c := range cfg.Sink.AcceptStatus {
		if c < 100 || c > 599 {
			add("sink.accept_status: invalid status %d", c)
		}
	}
	dur("sink.timeout", cfg.Sink.Timeout)

	// logging
	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Remote.MinLevel) {
		add("logging.remote.min_level: unknown level %q", cfg.Logging.Remote.MinLevel)
	}
	if cfg.Logging.Remote.RatePerSec < 0 {
		add("logging.remote.rate_per_sec: must be >= 0")
	}

	// ops
	dur("ops.read_timeout", cfg.Ops.ReadTimeout)
	dur("ops.write_timeout", cfg.Ops.WriteTimeout)
	dur("ops.idle_timeout", cfg.Ops.IdleTimeout)

	// status
	if s := strings.TrimSpace(cfg.Status.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			add("status.schedule: %v", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Status.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("status.timezone: %v", err)
		}
	}

	return errors.Join(errs...)
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
