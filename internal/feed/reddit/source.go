// Package reddit polls the Reddit comment listing of one or more subreddits
// and exposes it as a feed.Source.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"commentwatch/internal/feed"
	logx "commentwatch/pkg/logx"
)

const (
	DefaultBaseURL   = "https://www.reddit.com"
	DefaultOAuthURL  = "https://oauth.reddit.com"
	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent = "commentwatch/1.0"
)

type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string

	PollInterval   time.Duration
	RequestTimeout time.Duration
	SeenCapacity   int
	Limit          int

	BaseURL    string
	OAuthURL   string
	TokenURL   string
	SourceName string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 1024
	}
	if c.Limit <= 0 || c.Limit > 100 {
		c.Limit = 100
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.OAuthURL == "" {
		c.OAuthURL = DefaultOAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.SourceName == "" {
		c.SourceName = "Reddit"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.OAuthURL = strings.TrimRight(c.OAuthURL, "/")
	return c
}

// Authenticated reports whether OAuth2 client credentials are configured.
func (c Config) Authenticated() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Source is a polling Reddit comment feed.
type Source struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

// New builds the HTTP client. No network call is made until Open.
func New(cfg Config, log logx.Logger) *Source {
	cfg = cfg.withDefaults()
	base := &http.Client{
		Transport: &uaTransport{ua: cfg.UserAgent, base: http.DefaultTransport},
		Timeout:   cfg.RequestTimeout,
	}

	client := base
	if cfg.Authenticated() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		// Token requests go through base too, so they carry the User-Agent.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = cfg.RequestTimeout
	}

	return &Source{
		cfg:    cfg,
		client: client,
		log:    log.With(logx.String("comp", "feed.reddit")),
	}
}

func (s *Source) Name() string { return s.cfg.SourceName }

// ListingURL returns the listing endpoint for the given subreddits.
func (s *Source) ListingURL(channels []string) string {
	multi := url.PathEscape(strings.Join(channels, "+"))
	// PathEscape leaves '+' alone, which Reddit reads as a multi-subreddit.
	q := "limit=" + strconv.Itoa(s.cfg.Limit) + "&raw_json=1"
	if s.cfg.Authenticated() {
		return s.cfg.OAuthURL + "/r/" + multi + "/comments?" + q
	}
	return s.cfg.BaseURL + "/r/" + multi + "/comments.json?" + q
}

// Open fetches the baseline listing and returns a stream of comments posted
// after it. With SkipExisting unset, the baseline is delivered too.
func (s *Source) Open(ctx context.Context, opts feed.OpenOptions) (feed.Stream, error) {
	channels := cleanChannels(opts.Channels)
	if len(channels) == 0 {
		return nil, errors.New("reddit: no subreddits configured")
	}

	st := &stream{
		src:      s,
		url:      s.ListingURL(channels),
		seen:     newSeenSet(s.cfg.SeenCapacity),
		done:     make(chan struct{}),
		interval: s.cfg.PollInterval,
	}

	items, err := s.fetch(ctx, st.url)
	if err != nil {
		return nil, err
	}
	if opts.SkipExisting {
		for _, it := range items {
			st.seen.Add(it.id)
		}
		s.log.Debug("baseline skipped", logx.Int("items", len(items)), logx.Strings("channels", channels))
	} else {
		st.enqueue(items)
	}
	return st, nil
}

func (s *Source) fetch(ctx context.Context, u string) ([]item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After")}
	}
	return decodeListing(resp.Body)
}

// StatusError is a non-200 listing response.
type StatusError struct {
	Code       int
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("reddit: unexpected status %d (retry-after %s)", e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("reddit: unexpected status %d", e.Code)
}

type uaTransport struct {
	ua   string
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}

func cleanChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		c = strings.TrimPrefix(c, "r/")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
