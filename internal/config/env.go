package config

import (
	"os"
	"strings"
)

// Env names read as fallbacks for empty fields.
const (
	EnvRedditClientID     = "REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "REDDIT_CLIENT_SECRET"
	EnvRedditUserAgent    = "REDDIT_USER_AGENT"
	EnvDiscordWebhookURL  = "DISCORD_WEBHOOK_URL"
	EnvTelegramBotToken   = "TELEGRAM_BOT_TOKEN"
)

// ApplyEnv fills empty credential fields from the environment and infers an
// empty sink driver.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(getenv(key))
		}
	}

	fill(&cfg.Feed.ClientID, EnvRedditClientID)
	fill(&cfg.Feed.ClientSecret, EnvRedditClientSecret)
	fill(&cfg.Feed.UserAgent, EnvRedditUserAgent)

	driver := strings.ToLower(strings.TrimSpace(cfg.Sink.Driver))
	if driver == "" || driver == "webhook" {
		fill(&cfg.Sink.URL, EnvDiscordWebhookURL)
	}
	if driver == "" || driver == "telegram" {
		fill(&cfg.Sink.Telegram.Token, EnvTelegramBotToken)
	}

	if driver == "" {
		switch {
		case cfg.Sink.URL != "":
			driver = "webhook"
		case cfg.Sink.Telegram.Token != "" && cfg.Sink.Telegram.ChatID != 0:
			driver = "telegram"
		default:
			driver = "none"
		}
	}
	cfg.Sink.Driver = driver
}
