package reddit

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"time"

	"commentwatch/internal/feed"
)

const maxListingBytes = 8 << 20

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []json.RawMessage `json:"children"`
	} `json:"data"`
}

type child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type comment struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

// item is one listing child: an event or the reason it could not be decoded.
type item struct {
	id  string
	ev  feed.Event
	err error
}

// decodeListing parses a listing newest-first, as Reddit returns it.
// A malformed envelope is an error; a malformed child becomes an item with err set.
func decodeListing(r io.Reader) ([]item, error) {
	var l listing
	dec := json.NewDecoder(io.LimitReader(r, maxListingBytes))
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("reddit: decode listing: %w", err)
	}
	if l.Kind != "Listing" {
		return nil, fmt.Errorf("reddit: unexpected listing kind %q", l.Kind)
	}

	out := make([]item, 0, len(l.Data.Children))
	for _, raw := range l.Data.Children {
		out = append(out, decodeChild(raw))
	}
	return out, nil
}

func decodeChild(raw json.RawMessage) item {
	// Children without a usable id are keyed by content so a bad child is
	// reported once, not on every poll.
	rawID := rawKey(raw)

	var c child
	if err := json.Unmarshal(raw, &c); err != nil {
		return item{id: rawID, err: &feed.DecodeError{Err: err}}
	}
	if c.Kind != "t1" {
		return item{id: rawID, err: &feed.DecodeError{Err: fmt.Errorf("unexpected kind %q", c.Kind)}}
	}

	var cm comment
	if err := json.Unmarshal(c.Data, &cm); err != nil {
		return item{id: rawID, err: &feed.DecodeError{Err: err}}
	}
	if cm.ID == "" {
		return item{id: rawID, err: &feed.DecodeError{Err: errors.New("missing id")}}
	}
	if cm.Permalink == "" {
		return item{id: cm.ID, err: &feed.DecodeError{EventID: cm.ID, Err: errors.New("missing permalink")}}
	}

	author := cm.Author
	if author == "[deleted]" {
		author = ""
	}
	return item{id: cm.ID, ev: feed.Event{
		ID:        cm.ID,
		Author:    author,
		Body:      cm.Body,
		Channel:   cm.Subreddit,
		Permalink: cm.Permalink,
		Kind:      "comment",
		Created:   unixSeconds(cm.CreatedUTC),
	}}
}

func rawKey(raw []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return fmt.Sprintf("raw:%x", h.Sum64())
}

func unixSeconds(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
