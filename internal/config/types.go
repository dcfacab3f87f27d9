package config

import logx "commentwatch/pkg/logx"

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Empty means default.
type Config struct {
	Feed     FeedConfig    `json:"feed"`
	Triggers []string      `json:"triggers"`
	Monitor  MonitorConfig `json:"monitor"`
	Sink     SinkConfig    `json:"sink"`
	Logging  LoggingConfig `json:"logging"`
	Ops      OpsConfig     `json:"ops,omitempty"`
	Status   StatusConfig  `json:"status,omitempty"`
	Systemd  SystemdConfig `json:"systemd,omitempty"`
}

// FeedConfig selects and configures the comment source.
//
// Credentials fall back to REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET and
// REDDIT_USER_AGENT. Without credentials the public JSON listing is used.
type FeedConfig struct {
	Driver   string   `json:"driver,omitempty"` // "reddit" (default)
	Channels []string `json:"channels"`

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"` // do not log
	UserAgent    string `json:"user_agent,omitempty"`

	PollInterval   string `json:"poll_interval,omitempty"`   // default 5s
	RequestTimeout string `json:"request_timeout,omitempty"` // default 15s
	SeenCapacity   int    `json:"seen_capacity,omitempty"`   // default 1024

	BaseURL    string `json:"base_url,omitempty"`
	OAuthURL   string `json:"oauth_url,omitempty"`
	TokenURL   string `json:"token_url,omitempty"`
	SourceName string `json:"source_name,omitempty"` // default "Reddit"
}

type MonitorConfig struct {
	Backoff       string `json:"backoff,omitempty"`        // default 10s
	BackoffJitter string `json:"backoff_jitter,omitempty"` // default 0
	DecodePause   string `json:"decode_pause,omitempty"`   // default 5s
}

// SinkConfig selects where alerts go.
//
// url falls back to DISCORD_WEBHOOK_URL and telegram.token to
// TELEGRAM_BOT_TOKEN. An empty driver is inferred from what is set.
type SinkConfig struct {
	Driver       string `json:"driver,omitempty"` // none | webhook | telegram
	URL          string `json:"url,omitempty"`    // do not log
	ContentField string `json:"content_field,omitempty"`
	AcceptStatus []int  `json:"accept_status,omitempty"`

	Timeout    string  `json:"timeout,omitempty"` // default 10s
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	LinkBase   string  `json:"link_base,omitempty"`

	Telegram TelegramSinkConfig `json:"telegram,omitempty"`
}

type TelegramSinkConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Remote  LoggingRemote `json:"remote,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingRemote forwards WARN+ log lines to the alert sink.
type LoggingRemote struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the optional HTTP server with /healthz, /metrics and pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	RateLimit     int    `json:"rate_limit,omitempty"` // requests/min per IP; default 120, -1 disables

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// StatusConfig schedules a periodic summary. Empty schedule disables it.
type StatusConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec or "@every 6h"
	Timezone string `json:"timezone,omitempty"`
	Notify   bool   `json:"notify,omitempty"` // also send the summary to the sink
}

type SystemdConfig struct {
	// Notify sends READY/WATCHDOG/STOPPING when running under systemd.
	Notify bool `json:"notify,omitempty"`
}

// Logx converts the logging section for logx.New / Service.Apply.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Remote: logx.RemoteConfig{
			Enabled:    l.Remote.Enabled,
			MinLevel:   l.Remote.MinLevel,
			RatePerSec: l.Remote.RatePerSec,
		},
	}
}
