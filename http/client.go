package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	ihttp "github.com/wesleyorama2/netwire/internal/http"
)

// WaitInfinite disables a timeout.
const WaitInfinite = ihttp.WaitInfinite

// ErrTimeout is returned when the client's timeout elapses.
var ErrTimeout = ihttp.ErrTimeout

// Client sends requests to one server.
type Client struct {
	mu     sync.Mutex
	client *ihttp.Client
	prefix string
}

// Option configures a Client.
type Option = ihttp.Option

// WithTimeout bounds each request. The default is WaitInfinite; a context
// deadline that comes earlier wins.
func WithTimeout(timeout time.Duration) Option {
	return ihttp.WithTimeout(timeout)
}

// WithConnectTimeout bounds opening a connection.
func WithConnectTimeout(timeout time.Duration) Option {
	return ihttp.WithConnectTimeout(timeout)
}

// WithHeader adds a header to every request. Headers set on a request are
// sent as well.
func WithHeader(key, value string) Option {
	return ihttp.WithHeader(key, value)
}

// WithAuth sends Basic credentials with every request.
func WithAuth(user, password string) Option {
	return ihttp.WithAuth(user, password)
}

// WithBufferSize sets the size of the connection's read buffer.
func WithBufferSize(n int) Option {
	return ihttp.WithBufferSize(n)
}

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) Option {
	return ihttp.WithLogger(l)
}

// NewClient creates a client for baseURL, e.g. "http://api.example.com/v1".
// A path in baseURL is prepended to every request target; user info
// becomes Basic credentials.
//
// Example:
//
//	client, err := http.NewClient("http://localhost:8080/api",
//	    http.WithTimeout(30*time.Second),
//	    http.WithHeader("Authorization", "Bearer token"),
//	)
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	c, err := ihttp.NewClientURL(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: c, prefix: strings.TrimSuffix(u.EscapedPath(), "/")}, nil
}

// Do sends req and reads the whole reply. It returns early with ctx's
// error when ctx is done.
//
// Example:
//
//	req := http.NewRequest("GET", "/users").
//	    WithQueryParam("limit", "10")
//
//	resp, err := client.Do(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Status: %d, TTFB: %v\n", resp.StatusCode, resp.Timing.TimeToFirstByte)
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prefix != "" {
		req = req.Clone()
		req.Target = joinTarget(c.prefix, req.Target)
	}

	reply, body, err := c.client.ExecuteContext(ctx, req)
	if err != nil {
		return nil, err
	}
	return newResponse(reply, body, c.client.Timing()), nil
}

// Get is a convenience method for making GET requests.
func (c *Client) Get(ctx context.Context, target string) (*Response, error) {
	return c.Do(ctx, NewRequest("GET", target))
}

// Post is a convenience method for making POST requests with a body.
func (c *Client) Post(ctx context.Context, target string, body interface{}) (*Response, error) {
	return c.Do(ctx, NewRequest("POST", target).WithBody(body))
}

// Put is a convenience method for making PUT requests with a body.
func (c *Client) Put(ctx context.Context, target string, body interface{}) (*Response, error) {
	return c.Do(ctx, NewRequest("PUT", target).WithBody(body))
}

// Delete is a convenience method for making DELETE requests.
func (c *Client) Delete(ctx context.Context, target string) (*Response, error) {
	return c.Do(ctx, NewRequest("DELETE", target))
}

// Patch is a convenience method for making PATCH requests with a body.
func (c *Client) Patch(ctx context.Context, target string, body interface{}) (*Response, error) {
	return c.Do(ctx, NewRequest("PATCH", target).WithBody(body))
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}

func joinTarget(prefix, target string) string {
	switch {
	case target == "":
		return prefix + "/"
	case strings.HasPrefix(target, "/"):
		return prefix + target
	}
	return prefix + "/" + target
}
