// Package feed defines the contract between the monitor and a live source of
// text events.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event is one item from the feed. Author is empty for deleted accounts.
type Event struct {
	ID        string
	Author    string
	Body      string
	Channel   string
	Permalink string
	Kind      string
	Created   time.Time
}

// OpenOptions selects what a new stream delivers.
type OpenOptions struct {
	Channels []string
	// Since is the connection time. Events created before it are history.
	Since time.Time
	// SkipExisting asks the source to deliver only events that arrive after Open.
	SkipExisting bool
}

// Source opens streams. One Source may be opened many times; each Stream is
// an independent connection.
type Source interface {
	Name() string
	Open(ctx context.Context, opts OpenOptions) (Stream, error)
}

// Stream yields events until it breaks.
//
// Next blocks until an event is available. A *DecodeError means one item was
// unusable and the stream is still healthy. Any other error means the stream
// is finished.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// ErrEndOfStream is returned when the source ends the stream without a failure.
var ErrEndOfStream = errors.New("feed: end of stream")

// DecodeError marks a single malformed item.
type DecodeError struct {
	EventID string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("feed: decode event: %v", e.Err)
	}
	return fmt.Sprintf("feed: decode event %s: %v", e.EventID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError means the connection is unusable and must be reopened.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("feed: transport: %v", e.Err)
	}
	return fmt.Sprintf("feed: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsDecode reports whether err is a per-event decode failure.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// AsTransport returns err as a *TransportError, wrapping it when needed.
// Context cancellation is passed through unchanged.
func AsTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
