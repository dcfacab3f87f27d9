package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentwatch/internal/feed"
	logx "commentwatch/pkg/logx"
)

type fakeComment struct {
	ID, Author, Body, Sub, Permalink string
	Created                          float64
}

func listingJSON(comments ...fakeComment) string {
	children := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		children = append(children, map[string]any{
			"kind": "t1",
			"data": map[string]any{
				"id":          c.ID,
				"author":      c.Author,
				"body":        c.Body,
				"subreddit":   c.Sub,
				"permalink":   c.Permalink,
				"created_utc": c.Created,
			},
		})
	}
	b, _ := json.Marshal(map[string]any{"kind": "Listing", "data": map[string]any{"children": children}})
	return string(b)
}

// listingServer serves the queued bodies in order, repeating the last one.
type listingServer struct {
	mu     sync.Mutex
	bodies []string
	codes  []int
	hits   int
	paths  []string
	uas    []string
	auths  []string
}

func (ls *listingServer) push(code int, body string) {
	ls.mu.Lock()
	ls.codes = append(ls.codes, code)
	ls.bodies = append(ls.bodies, body)
	ls.mu.Unlock()
}

func (ls *listingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ls.mu.Lock()
	i := min(ls.hits, len(ls.bodies)-1)
	ls.hits++
	ls.paths = append(ls.paths, r.URL.RequestURI())
	ls.uas = append(ls.uas, r.Header.Get("User-Agent"))
	ls.auths = append(ls.auths, r.Header.Get("Authorization"))
	code, body := ls.codes[i], ls.bodies[i]
	ls.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func newTestSource(t *testing.T, srv *httptest.Server, mut func(*Config)) *Source {
	t.Helper()
	cfg := Config{
		UserAgent:    "commentwatch-test/1.0",
		PollInterval: 5 * time.Millisecond,
		BaseURL:      srv.URL,
		OAuthURL:     srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
	}
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg, logx.Nop())
}

func TestOpenSkipsBaselineAndDeliversOldestFirst(t *testing.T) {
	ls := &listingServer{}
	ls.push(200, listingJSON(fakeComment{ID: "old", Sub: "x", Permalink: "/r/x/old"}))
	// Newest first, as Reddit returns it.
	ls.push(200, listingJSON(
		fakeComment{ID: "c2", Author: "bob", Body: "second", Sub: "x", Permalink: "/r/x/c2", Created: 1700000002},
		fakeComment{ID: "c1", Author: "[deleted]", Body: "first", Sub: "x", Permalink: "/r/x/c1", Created: 1700000001.5},
		fakeComment{ID: "old", Sub: "x", Permalink: "/r/x/old"},
	))
	srv := httptest.NewServer(ls)
	defer srv.Close()

	src := newTestSource(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := src.Open(ctx, feed.OpenOptions{Channels: []string{"x", "r/y"}, SkipExisting: true})
	require.NoError(t, err)
	defer st.Close()

	ev, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.ID)
	assert.Equal(t, "", ev.Author)
	assert.Equal(t, "comment", ev.Kind)
	assert.Equal(t, int64(1700000001), ev.Created.Unix())

	ev, err = st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c2", ev.ID)
	assert.Equal(t, "bob", ev.Author)
	assert.Equal(t, "/r/x/c2", ev.Permalink)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	assert.Equal(t, "/r/x+y/comments.json?limit=100&raw_json=1", ls.paths[0])
	assert.Equal(t, "commentwatch-test/1.0", ls.uas[0])
	assert.Empty(t, ls.auths[0])
}

func TestOpenWithoutSkipDeliversBaseline(t *testing.T) {
	ls := &listingServer{}
	ls.push(200, listingJSON(fakeComment{ID: "old", Sub: "x", Permalink: "/r/x/old"}))
	srv := httptest.NewServer(ls)
	defer srv.Close()

	st, err := newTestSource(t, srv, nil).Open(context.Background(), feed.OpenOptions{Channels: []string{"x"}})
	require.NoError(t, err)
	defer st.Close()

	ev, err := st.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", ev.ID)
}

func TestMalformedChildIsDecodeError(t *testing.T) {
	bad := `{"kind":"Listing","data":{"children":[{"kind":"t1","data":{"id":"c9","body":"x"}},{"kind":"t3","data":{}}]}}`
	ls := &listingServer{}
	ls.push(200, listingJSON())
	ls.push(200, bad)
	srv := httptest.NewServer(ls)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := newTestSource(t, srv, nil).Open(ctx, feed.OpenOptions{Channels: []string{"x"}, SkipExisting: true})
	require.NoError(t, err)
	defer st.Close()

	// Oldest first: the t3 child comes out before c9.
	_, err = st.Next(ctx)
	require.True(t, feed.IsDecode(err), "got %v", err)

	_, err = st.Next(ctx)
	var de *feed.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "c9", de.EventID)

	// The same bad children are not reported again on later polls.
	ctx2, cancel2 := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel2()
	_, err = st.Next(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportErrors(t *testing.T) {
	for _, code := range []int{401, 403, 429, 500, 503} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			ls := &listingServer{}
			ls.push(200, listingJSON())
			ls.push(code, `{"message":"nope"}`)
			srv := httptest.NewServer(ls)
			defer srv.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			st, err := newTestSource(t, srv, nil).Open(ctx, feed.OpenOptions{Channels: []string{"x"}, SkipExisting: true})
			require.NoError(t, err)
			defer st.Close()

			_, err = st.Next(ctx)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, code, se.Code)
			assert.False(t, feed.IsDecode(err))
		})
	}
}

func TestOpenFailsOnBadListing(t *testing.T) {
	ls := &listingServer{}
	ls.push(200, `<html>maintenance</html>`)
	srv := httptest.NewServer(ls)
	defer srv.Close()

	_, err := newTestSource(t, srv, nil).Open(context.Background(), feed.OpenOptions{Channels: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode listing")
	assert.False(t, feed.IsDecode(err))
}

func TestOpenRequiresChannels(t *testing.T) {
	src := New(Config{}, logx.Nop())
	_, err := src.Open(context.Background(), feed.OpenOptions{Channels: []string{" ", ""}})
	require.Error(t, err)
}

func TestCloseEndsStream(t *testing.T) {
	ls := &listingServer{}
	ls.push(200, listingJSON())
	srv := httptest.NewServer(ls)
	defer srv.Close()

	src := newTestSource(t, srv, func(c *Config) { c.PollInterval = time.Hour })
	st, err := src.Open(context.Background(), feed.OpenOptions{Channels: []string{"x"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.Next(context.Background())
	assert.ErrorIs(t, err, feed.ErrEndOfStream)
}

func TestOAuthClientCredentials(t *testing.T) {
	var tokenCalls int
	var mu sync.Mutex
	ls := &listingServer{}
	ls.push(200, listingJSON())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenCalls++
		mu.Unlock()
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			http.Error(w, "bad creds", http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" || !strings.HasPrefix(r.UserAgent(), "commentwatch-test") {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
	})
	mux.Handle("/", ls)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := newTestSource(t, srv, func(c *Config) {
		c.ClientID = "id"
		c.ClientSecret = "secret"
	})
	st, err := src.Open(context.Background(), feed.OpenOptions{Channels: []string{"a", "b"}, SkipExisting: true})
	require.NoError(t, err)
	defer st.Close()

	mu.Lock()
	assert.Equal(t, 1, tokenCalls)
	mu.Unlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()
	assert.Equal(t, "/r/a+b/comments?limit=100&raw_json=1", ls.paths[0])
	assert.Equal(t, "Bearer tok123", ls.auths[0])
	assert.Equal(t, "commentwatch-test/1.0", ls.uas[0])
}

func TestOAuthTokenFailureIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := newTestSource(t, srv, func(c *Config) {
		c.ClientID = "id"
		c.ClientSecret = "wrong"
	})
	_, err := src.Open(context.Background(), feed.OpenOptions{Channels: []string{"a"}})
	require.Error(t, err)
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("c"))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Add("a"), "a was evicted")
}
