package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight, in-memory lifecycle signal.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; slow subscribers drop events.
//
// Data is one of the payload structs below.
type Event struct {
	Type string
	Time time.Time
	Data any
}

const (
	SessionOpened     = "session.opened"
	SessionFailed     = "session.failed"
	SupervisorBackoff = "supervisor.backoff"
	EventMatched      = "event.matched"
	AlertSent         = "alert.sent"
	AlertFailed       = "alert.failed"
	AlertSkipped      = "alert.skipped"
)

// SessionEvent is the payload of session.* and supervisor.backoff events.
type SessionEvent struct {
	SessionID string        `json:"session_id,omitempty"`
	Channels  []string      `json:"channels,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// AlertEvent is the payload of event.matched and alert.* events.
type AlertEvent struct {
	EventID string `json:"event_id"`
	Channel string `json:"channel,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Sink    string `json:"sink,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Publish is a nil-safe helper so components can run without a bus.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
	drop atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch under us.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.drop.Add(1)
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.drop.Load()
	}
	return 0
}
