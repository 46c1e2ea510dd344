// Package httpclient is the outbound HTTP client shared by the CMS client,
// the collectors and the curators. Requests are retried on transient
// failures and throttled per remote host.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/version"
)

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 64 << 20

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	Rate      float64 // requests per second per host; 0 disables throttling
	RetryWait time.Duration
}

// Client performs retried, rate-limited HTTP requests.
type Client struct {
	rc       *retryablehttp.Client
	limiters *hostLimiters
	log      *logging.Logger
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// New creates a client. A nil logger discards retry logging.
func New(opts Options, log *logging.Logger) *Client {
	if log == nil {
		log = logging.New(io.Discard, "silent")
	}
	log = log.Sub("http")

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	if opts.RetryWait > 0 {
		rc.RetryWaitMin = opts.RetryWait
		rc.RetryWaitMax = 10 * opts.RetryWait
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.Logger = leveledLogger{log: log}
	// Return the last response instead of a generic "giving up" error so
	// callers can report the status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		rc:       rc,
		limiters: newHostLimiters(opts.Rate),
		log:      log,
	}
}

// Do sends req after waiting for the host's rate limiter.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiters.wait(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.rc.Do(rreq)
}

// Get fetches rawURL and returns the response body. Non-2xx responses
// yield a *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.read(req)
}

// GetQuery fetches rawURL with params merged into its query string.
func (c *Client) GetQuery(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return c.Get(ctx, u.String())
}

// SendForm submits form as application/x-www-form-urlencoded using method
// (POST or PUT) and returns the response body.
func (c *Client) SendForm(ctx context.Context, method, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.read(req)
}

func (c *Client) read(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = RedactURL(req.URL)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: req.Method,
			URL:    RedactURL(req.URL),
			Code:   resp.StatusCode,
			Body:   truncate(string(body), 512),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RedactURL renders u with the values of credential-like query parameters
// masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	changed := false
	for k := range q {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "pass") || strings.Contains(lk, "token") || strings.Contains(lk, "secret") {
			q.Set(k, "xxxxx")
			changed = true
		}
	}
	if !changed {
		return u.Redacted()
	}
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.Redacted()
}
