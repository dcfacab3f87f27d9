package app

import (
	"fmt"
	"strings"
	"time"

	"commentwatch/internal/config"
	"commentwatch/internal/feed"
	"commentwatch/internal/feed/reddit"
	"commentwatch/internal/monitor"
	"commentwatch/internal/notifier"
	"commentwatch/internal/notifier/telegram"
	"commentwatch/internal/notifier/webhook"
	"commentwatch/internal/observability/ops"
	"commentwatch/internal/status"
	logx "commentwatch/pkg/logx"
)

// Config values are validated by config.Manager before they get here, so the
// mappers below use defaults instead of returning parse errors.

func mapFeedSource(cfg *config.Config, log logx.Logger) (feed.Source, error) {
	switch d := strings.ToLower(strings.TrimSpace(cfg.Feed.Driver)); d {
	case "", "reddit":
		fc := cfg.Feed
		return reddit.New(reddit.Config{
			ClientID:       fc.ClientID,
			ClientSecret:   fc.ClientSecret,
			UserAgent:      fc.UserAgent,
			PollInterval:   config.Duration(fc.PollInterval, 5*time.Second),
			RequestTimeout: config.Duration(fc.RequestTimeout, 15*time.Second),
			SeenCapacity:   fc.SeenCapacity,
			BaseURL:        fc.BaseURL,
			OAuthURL:       fc.OAuthURL,
			TokenURL:       fc.TokenURL,
			SourceName:     fc.SourceName,
		}, log), nil
	default:
		return nil, fmt.Errorf("feed.driver: unsupported %q", d)
	}
}

// mapSink returns nil for driver "none".
func mapSink(cfg *config.Config) (notifier.Sink, error) {
	sc := cfg.Sink
	timeout := config.Duration(sc.Timeout, 10*time.Second)
	switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
	case "", "none":
		return nil, nil
	case "webhook":
		s, err := webhook.New(webhook.Config{
			URL:          sc.URL,
			ContentField: sc.ContentField,
			AcceptStatus: sc.AcceptStatus,
			Timeout:      timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("sink.url: %w", err)
		}
		return s, nil
	case "telegram":
		s, err := telegram.New(telegram.Config{
			Token:    sc.Telegram.Token,
			ChatID:   sc.Telegram.ChatID,
			ThreadID: sc.Telegram.ThreadID,
			Timeout:  timeout,
			APIURL:   sc.Telegram.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("sink.telegram: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("sink.driver: unsupported %q", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Timeout:    config.Duration(cfg.Sink.Timeout, 10*time.Second),
		RatePerSec: cfg.Sink.RatePerSec,
		Burst:      cfg.Sink.Burst,
	}
}

func mapMonitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		Channels:    cfg.Feed.Channels,
		Backoff:     config.Duration(cfg.Monitor.Backoff, 10*time.Second),
		Jitter:      config.Duration(cfg.Monitor.BackoffJitter, 0),
		DecodePause: config.Duration(cfg.Monitor.DecodePause, 5*time.Second),
		LinkBase:    cfg.Sink.LinkBase,
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Addr:                 oc.Addr,
		Token:                oc.Token,
		AllowInsecure:        oc.AllowInsecure,
		Pprof:                oc.Pprof,
		RateLimit:            oc.RateLimit,
		ReadTimeout:          config.Duration(oc.ReadTimeout, 0),
		WriteTimeout:         config.Duration(oc.WriteTimeout, 0),
		IdleTimeout:          config.Duration(oc.IdleTimeout, 0),
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
	}
}

func mapStatusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Schedule: cfg.Status.Schedule,
		Timezone: cfg.Status.Timezone,
		Notify:   cfg.Status.Notify,
	}
}
