// Package transport is the HTTP client behind every backend contract of the
// tracker: catalog fetch, telemetry batches, server action delegation and
// webhooks.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// Backend endpoints.
const (
	PathActiveWorkflows = "/api/v1/workflows/site/%s/active"
	PathWorkflowBatch   = "/api/v1/workflows/analytics/track/batch"
	PathServerAction    = "/api/v1/workflows/execution/action"
	PathPageBatch       = "/api/v1/analytics/event/batch"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 3
	DefaultRetryDelay = time.Second
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Client talks to the analytics backend.
type Client struct {
	baseURL    string
	logger     *slog.Logger
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	httpClient *http.Client

	plain    *resty.Client
	retrying *resty.Client

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]struct{}
	pending  sync.WaitGroup
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithRetry sets the attempts and base delay of the page analytics path.
// Attempt n waits delay*n.
func WithRetry(count int, delay time.Duration) Option {
	return func(c *Client) {
		c.retryCount = count
		c.retryDelay = delay
	}
}

// WithHTTPClient replaces the underlying net/http client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
		retryCount: DefaultRetryCount,
		retryDelay: DefaultRetryDelay,
		inflight:   make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "transport")
	c.plain = c.newResty()
	c.retrying = c.newResty().
		SetRetryCount(c.retryCount).
		SetRetryWaitTime(c.retryDelay).
		SetRetryMaxWaitTime(c.retryDelay * time.Duration(max(c.retryCount, 1))).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			return c.retryDelay * time.Duration(max(resp.Request.Attempt, 1)), nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}

			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		})

	return c
}

func (c *Client) newResty() *resty.Client {
	var r *resty.Client
	if c.httpClient != nil {
		r = resty.NewWithClient(c.httpClient)
	} else {
		r = resty.New()
	}

	return r.
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetLogger(discardLogger{})
}

// URL resolves an endpoint path against the backend.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// ActiveWorkflowsURL returns the catalog endpoint of a site.
func (c *Client) ActiveWorkflowsURL(siteID string) string {
	return c.URL(fmt.Sprintf(PathActiveWorkflows, url.PathEscape(siteID)))
}

// GetJSON fetches rawURL and decodes the JSON body into out. It never retries.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.plain.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(rawURL)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}

	if resp.IsError() {
		return &StatusError{Method: http.MethodGet, URL: rawURL, Code: resp.StatusCode()}
	}

	// Decoded by hand: the backend does not always label its JSON.
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", rawURL, err)
	}

	return nil
}

// PostJSON posts body to path on the page analytics path. Identical requests
// already in flight share one round trip; transport errors and 5xx answers are
// retried with linearly growing delay.
func (c *Client) PostJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	target := c.URL(path)
	key := target + "\n" + string(payload)

	c.mu.Lock()
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	_, err, shared := c.group.Do(key, func() (any, error) {
		defer c.forget(key)

		return nil, c.post(ctx, c.retrying, target, payload)
	})

	if shared {
		c.logger.DebugContext(ctx, "coalesced identical request", "url", target)
	}

	return err
}

// PostKeepalive posts body to path on a context detached from the caller's
// cancellation, so the request outlives a page teardown.
func (c *Client) PostKeepalive(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	return c.post(context.WithoutCancel(ctx), c.plain, c.URL(path), payload)
}

// FireAndForget sends a request in the background. Failures are logged at
// debug level and otherwise ignored.
func (c *Client) FireAndForget(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) {
	ctx = context.WithoutCancel(ctx)

	c.pending.Add(1)

	go func() {
		defer c.pending.Done()

		req := c.plain.R().SetContext(ctx).SetHeaders(headers)
		if body != nil && method != http.MethodGet && method != http.MethodHead {
			req.SetBody(body)
		}

		resp, err := req.Execute(method, rawURL)
		if err != nil {
			c.logger.DebugContext(ctx, "background request failed", "method", method, "url", rawURL, "error", err)

			return
		}

		if resp.IsError() {
			c.logger.DebugContext(ctx, "background request rejected", "method", method, "url", rawURL, "status", resp.StatusCode())
		}
	}()
}

// Wait blocks until every background request finished.
func (c *Client) Wait() {
	c.pending.Wait()
}

// Reset drops the in-flight dedup table so later requests start fresh.
func (c *Client) Reset() {
	c.mu.Lock()
	keys := c.inflight
	c.inflight = make(map[string]struct{})
	c.mu.Unlock()

	for key := range keys {
		c.group.Forget(key)
	}
}

// InFlight returns the number of deduplicated requests currently in flight.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.inflight)
}

func (c *Client) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inflight, key)
}

func (c *Client) post(ctx context.Context, client *resty.Client, target string, payload []byte) error {
	resp, err := client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(target)
	if err != nil {
		return fmt.Errorf("POST %s: %w", target, err)
	}

	if resp.IsError() {
		return &StatusError{Method: http.MethodPost, URL: target, Code: resp.StatusCode()}
	}

	return nil
}

// Beacon is an unload-safe sender built on FireAndForget: it accepts the body
// immediately and delivers it in the background.
type Beacon struct {
	client *Client
}

func NewBeacon(client *Client) *Beacon {
	return &Beacon{client: client}
}

func (b *Beacon) SendBeacon(rawURL string, body []byte) bool {
	if b == nil || b.client == nil {
		return false
	}

	b.client.FireAndForget(context.Background(), http.MethodPost, rawURL, nil, body)

	return true
}

// discardLogger silences resty's own logging; the client logs through slog.
type discardLogger struct{}

func (discardLogger) Errorf(string, ...any) {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Debugf(string, ...any) {}
