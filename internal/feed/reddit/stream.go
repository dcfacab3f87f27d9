package reddit

import (
	"context"
	"sync"
	"time"

	"commentwatch/internal/feed"
	logx "commentwatch/pkg/logx"
)

type stream struct {
	src      *Source
	url      string
	interval time.Duration

	mu      sync.Mutex
	seen    *seenSet
	pending []item

	once sync.Once
	done chan struct{}
}

// enqueue appends unseen items oldest-first. Listings arrive newest-first.
func (st *stream) enqueue(items []item) int {
	n := 0
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.id != "" && !st.seen.Add(it.id) {
			continue
		}
		st.pending = append(st.pending, it)
		n++
	}
	return n
}

func (st *stream) pop() (item, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.pending) == 0 {
		return item{}, false
	}
	it := st.pending[0]
	st.pending = st.pending[1:]
	return it, true
}

func (st *stream) Next(ctx context.Context) (feed.Event, error) {
	for {
		if it, ok := st.pop(); ok {
			if it.err != nil {
				return feed.Event{}, it.err
			}
			return it.ev, nil
		}

		// Open already fetched the baseline, so every poll waits first.
		t := time.NewTimer(st.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return feed.Event{}, ctx.Err()
		case <-st.done:
			t.Stop()
			return feed.Event{}, feed.ErrEndOfStream
		case <-t.C:
		}

		items, err := st.src.fetch(ctx, st.url)
		if err != nil {
			if ctx.Err() != nil {
				return feed.Event{}, ctx.Err()
			}
			return feed.Event{}, err
		}

		st.mu.Lock()
		n := st.enqueue(items)
		st.mu.Unlock()
		if n > 0 {
			st.src.log.Debug("new comments", logx.Int("count", n))
		}
	}
}

func (st *stream) Close() error {
	st.once.Do(func() { close(st.done) })
	return nil
}

// seenSet remembers the most recent IDs, evicting the oldest first.
type seenSet struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, capacity), ring: make([]string, capacity)}
}

// Add records id and reports whether it was new.
func (s *seenSet) Add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % len(s.ring)
	s.ids[id] = struct{}{}
	return true
}

func (s *seenSet) Len() int { return len(s.ids) }
