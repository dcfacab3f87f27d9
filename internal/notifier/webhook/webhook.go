// Package webhook posts alerts to a Discord-style incoming webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultField     = "content"
	defaultUserAgent = "commentwatch/1.0"
	maxErrorBody     = 512
)

type Config struct {
	URL string
	// ContentField is the JSON key carrying the text. Discord uses "content", Slack "text".
	ContentField string
	// AcceptStatus lists the status codes counted as delivered. Default 200 and 204.
	AcceptStatus []int
	Timeout      time.Duration
	UserAgent    string
}

// StatusError is a response with a status code outside AcceptStatus.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.Code, e.Body)
}

// Sink implements notifier.Sink.
type Sink struct {
	client *http.Client
	url    string
	field  string
	accept map[int]bool
	ua     string
}

// New validates the URL. No request is made.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("webhook URL must include a host")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ContentField == "" {
		cfg.ContentField = defaultField
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	accept := map[int]bool{}
	for _, c := range cfg.AcceptStatus {
		accept[c] = true
	}
	if len(accept) == 0 {
		accept[http.StatusOK] = true
		accept[http.StatusNoContent] = true
	}

	return &Sink{
		client: &http.Client{Timeout: cfg.Timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		url:    cfg.URL,
		field:  cfg.ContentField,
		accept: accept,
		ua:     cfg.UserAgent,
	}, nil
}

func (s *Sink) Name() string { return "webhook" }

// Redacted returns the target URL safe for logs.
func (s *Sink) Redacted() string { return RedactURL(s.url) }

// Send makes a single POST attempt.
func (s *Sink) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{s.field: text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.ua)

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, which carries the webhook token.
		var ue *url.Error
		if errors.As(err, &ue) {
			return fmt.Errorf("post %s: %w", RedactURL(s.url), ue.Err)
		}
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if s.accept[resp.StatusCode] {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// RedactURL masks credentials for logging: userinfo, query values, and the
// token segment of /webhooks/<id>/<token> paths.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	if i := strings.Index(u.Path, "/webhooks/"); i >= 0 {
		parts := strings.Split(u.Path[i+len("/webhooks/"):], "/")
		if len(parts) >= 2 && parts[1] != "" {
			parts[1] = "REDACTED"
			u.Path = u.Path[:i+len("/webhooks/")] + strings.Join(parts, "/")
			u.RawPath = ""
		}
	}
	return u.Redacted()
}
