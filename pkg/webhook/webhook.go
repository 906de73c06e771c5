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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// PayloadFunc builds the JSON body posted for one recipient.
type PayloadFunc func(n *notifications.Notification, r notifications.Recipient) any

// Channel delivers notifications as HTTP POST requests.
// Used for generic webhooks, where the recipient address is the URL,
// and for chat integrations with a fixed endpoint.
type Channel struct {
	name     notifications.Channel
	endpoint string
	secret   string
	timeout  time.Duration
	client   *http.Client
	headers  map[string]string
	payload  PayloadFunc
	now      func() time.Time

	cbFailures  int
	cbSuccesses int
	cbRecovery  time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// Option configures a Channel.
type Option func(*Channel)

// WithEndpoint posts every delivery to url instead of the recipient address.
func WithEndpoint(url string) Option {
	return func(c *Channel) { c.endpoint = url }
}

// WithSecret signs every request with HMAC-SHA256.
func WithSecret(secret string) Option {
	return func(c *Channel) { c.secret = secret }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Channel) {
		if client != nil {
			c.client = client
		}
	}
}

func WithHeader(key, value string) Option {
	return func(c *Channel) { c.headers[key] = value }
}

func WithPayload(fn PayloadFunc) Option {
	return func(c *Channel) {
		if fn != nil {
			c.payload = fn
		}
	}
}

// WithCircuitBreaker sets the thresholds of the per-endpoint breakers.
func WithCircuitBreaker(failures, successes int, recovery time.Duration) Option {
	return func(c *Channel) {
		c.cbFailures = failures
		c.cbSuccesses = successes
		c.cbRecovery = recovery
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChannel creates a webhook channel registered under name.
func NewChannel(name notifications.Channel, opts ...Option) *Channel {
	c := &Channel{
		name:    name,
		timeout: 10 * time.Second,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers:  make(map[string]string),
		payload:  DefaultPayload,
		now:      time.Now,
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Channel() notifications.Channel { return c.name }

// Deliver posts the payload for r. Responses are classified so the caller can
// tell retryable failures from permanent ones.
func (c *Channel) Deliver(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (delivery.Result, error) {
	target := c.endpoint
	if target == "" {
		target = r.Address
	}
	if err := validateURL(target); err != nil {
		return delivery.Result{}, err
	}

	payload, err := json.Marshal(c.payload(n, r))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	cb := c.breaker(target)
	if !cb.Allow() {
		return delivery.Result{}, ErrCircuitOpen
	}

	res, err := c.post(ctx, target, payload)
	if err != nil {
		// Permanent rejections say nothing about endpoint health.
		if errors.Is(err, ErrPermanentFailure) {
			cb.RecordSuccess()
		} else {
			cb.RecordFailure()
		}
		return delivery.Result{}, err
	}
	cb.RecordSuccess()
	return res, nil
}

// Healthy reports false while the breaker of the fixed endpoint is open.
// Channels posting to recipient addresses are always healthy.
func (c *Channel) Healthy(context.Context) bool {
	if c.endpoint == "" {
		return true
	}
	return c.breaker(c.endpoint).State() != CircuitOpen
}

// Breakers returns a snapshot of every endpoint breaker.
func (c *Channel) Breakers() map[string]CircuitStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CircuitStats, len(c.breakers))
	for endpoint, cb := range c.breakers {
		out[endpoint] = cb.Stats()
	}
	return out
}

func (c *Channel) breaker(endpoint string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[endpoint]
	if !ok {
		cb = NewCircuitBreaker(c.cbFailures, c.cbSuccesses, c.cbRecovery)
		cb.now = c.now
		c.breakers[endpoint] = cb
	}
	return cb
}

func (c *Channel) post(ctx context.Context, target string, payload []byte) (delivery.Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dispatchkit-webhook/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	webhookID := uuid.NewString()
	req.Header.Set(HeaderID, webhookID)
	if c.secret != "" {
		sig, err := SignPayload(c.secret, payload, c.now())
		if err != nil {
			return delivery.Result{}, err
		}
		sig.ID = webhookID
		sig.Apply(req.Header)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return delivery.Result{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return delivery.Result{}, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	snippet := truncate(strings.ReplaceAll(string(body), "\n", " "), 200)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		if snippet != "" {
			err = fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
		}
		if isPermanent(resp.StatusCode) {
			return delivery.Result{}, fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
		return delivery.Result{}, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}

	externalID := resp.Header.Get("X-Message-ID")
	if externalID == "" {
		externalID = webhookID
	}
	return delivery.Result{ExternalID: externalID, Response: snippet}, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}

// isPermanent treats 4xx as final except 408, 425 and 429.
func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
