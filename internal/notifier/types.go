package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSend wraps every sink failure (transport error, timeout, rejected status).
	ErrSend = errors.New("notifier: send failed")
	// ErrRateLimited means no send token was available within the timeout.
	ErrRateLimited = errors.New("notifier: rate limited")
)

// Sink delivers a rendered alert. Implementations make one attempt per call.
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Config controls delivery. Zero values get defaults.
type Config struct {
	// Timeout bounds one Notify call, including the rate-limit wait.
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	// HistorySize is how many recent deliveries Recent keeps.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return c
}

// HistoryItem is one delivery attempt, kept for /healthz.
type HistoryItem struct {
	At      time.Time `json:"at"`
	EventID string    `json:"event_id,omitempty"`
	Trigger string    `json:"trigger,omitempty"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}
