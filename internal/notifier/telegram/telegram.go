// Package telegram sends alerts to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// Telegram caps messages at 4096 characters.
const maxRunes = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration
	// APIURL overrides the Bot API endpoint (tests).
	APIURL string
}

// Sink implements notifier.Sink.
type Sink struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

// New builds an offline bot: no getMe call is made.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Send makes one sendMessage call. telebot has no context support, so ctx
// only bounds how long we wait for it; the client timeout bounds the call.
func (s *Sink) Send(ctx context.Context, text string) error {
	opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: s.thread}
	text = truncate(text, maxRunes)

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(s.chat, text, opt)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
