package config

import (
	"reflect"
	"strings"

	logx "commentwatch/pkg/logx"
)

// Change describes what differs between two configs.
type Change struct {
	// Sections lists every changed top-level section.
	Sections []string
	// RestartRequired lists changed sections that only take effect on restart.
	RestartRequired []string
	// Fields are safe log attributes; secrets are reported only as set/unset.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// LoggingChanged reports whether the hot-reloadable logging section changed.
func (c Change) LoggingChanged() bool {
	for _, s := range c.Sections {
		if s == "logging" {
			return true
		}
	}
	return false
}

// Diff compares two configs. Only logging is applied live.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, live bool) {
		ch.Sections = append(ch.Sections, section)
		if !live {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		mark("feed", false)
		ch.Fields = append(ch.Fields,
			logx.Strings("feed.channels", newCfg.Feed.Channels),
			logx.Bool("feed.credentials_set", newCfg.Feed.ClientSecret != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Triggers, newCfg.Triggers) {
		mark("triggers", false)
		ch.Fields = append(ch.Fields, logx.Int("triggers.count", len(newCfg.Triggers)))
	}
	if oldCfg.Monitor != newCfg.Monitor {
		mark("monitor", false)
	}
	if !reflect.DeepEqual(oldCfg.Sink, newCfg.Sink) {
		mark("sink", false)
		ch.Fields = append(ch.Fields,
			logx.String("sink.driver", newCfg.Sink.Driver),
			logx.Bool("sink.url_set", strings.TrimSpace(newCfg.Sink.URL) != ""),
			logx.Bool("sink.telegram_token_set", strings.TrimSpace(newCfg.Sink.Telegram.Token) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", true)
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.remote_enabled", newCfg.Logging.Remote.Enabled),
		)
	}
	if oldCfg.Ops != newCfg.Ops {
		mark("ops", false)
		ch.Fields = append(ch.Fields,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	if oldCfg.Status != newCfg.Status {
		mark("status", false)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", false)
	}
	return ch
}
