package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"refcheck/config"
)

// CustomTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
type CustomTransport struct {
	Transport http.RoundTripper
	UserAgent string
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.UserAgent)
	return t.Transport.RoundTrip(req)
}

// Client ist der gemeinsame HTTP-Client einer Quelle: User-Agent, Timeout und Rate-Limit.
type Client struct {
	HTTP    *http.Client
	limiter *rate.Limiter
}

// ClientOption konfiguriert einen Client.
type ClientOption func(*Client)

// WithoutRedirects lässt Redirects unverfolgt, damit 3xx-Antworten selbst ausgewertet werden können.
func WithoutRedirects() ClientOption {
	return func(c *Client) {
		c.HTTP.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

// WithLimiter ersetzt das Rate-Limit.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient erstellt einen Client gemäß SOURCE_TIMEOUT, SOURCE_RATE_LIMIT und USER_AGENT.
func NewClient(cfg *config.Config, opts ...ClientOption) *Client {
	limit := rate.Inf
	if cfg.SourceRateLimit > 0 {
		limit = rate.Limit(cfg.SourceRateLimit)
	}
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "refcheck/1.0"
	}

	c := &Client{
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &CustomTransport{
				Transport: http.DefaultTransport,
				UserAgent: ua,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do wartet auf das Rate-Limit und führt die Anfrage aus.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.HTTP.Do(req)
}

// Get führt eine GET-Anfrage aus.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head führt eine HEAD-Anfrage aus.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetJSON holt url und dekodiert bei Status 200 in v. Der Status wird immer zurückgegeben.
func (c *Client) GetJSON(ctx context.Context, url string, v any) (int, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
