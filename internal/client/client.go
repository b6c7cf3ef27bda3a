// Package client provides the impersonated HTTP client used for every hop.
package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"hopchain/internal/config"
	"hopchain/internal/fingerprint"
	"hopchain/internal/metrics"
	"hopchain/internal/model"
)

// maxConnectTimeout caps connection establishment (TCP, proxy, TLS handshake)
// so a slow connect cannot spend the whole hop budget.
const maxConnectTimeout = 5 * time.Second

// ConnectTimeout returns the connect timeout for a hop with the given total timeout.
func ConnectTimeout(total time.Duration) time.Duration {
	return min(total, maxConnectTimeout)
}

// Request is one outbound call.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Profile *fingerprint.Profile
	// Proxies maps a target scheme ("http", "https") or "all" to a proxy URL.
	Proxies map[string]string
	Timeout time.Duration
	// Decode removes the response Content-Encoding from the body stream.
	// The Content-Encoding header itself is left in place.
	Decode bool
	// Kind labels hop metrics (metrics.HopFinal or metrics.HopForward).
	Kind string
}

// Client issues impersonated requests. It keeps no per-request state, so a
// single Client is shared by all handlers.
type Client struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	insecure     bool
	maxRedirects int
}

// NewClient creates a Client.
// The metrics parameter is optional; pass nil to disable hop metrics recording.
func NewClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		logger:       logger.With("component", "hop_client"),
		metrics:      m,
		insecure:     cfg.Hop.InsecureSkipVerify,
		maxRedirects: cfg.Hop.MaxRedirects,
	}
}

// Do executes r and returns the response with an unread body. The caller
// owns the returned body and must close it.
func (c *Client) Do(ctx context.Context, r *Request) (*model.HopResponse, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(r.Body) == 0 {
		req.Body = http.NoBody
		req.GetBody = nil
		req.ContentLength = 0
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if r.Profile != nil {
		r.Profile.ApplyHeaders(req.Header)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	hc := &http.Client{
		Transport: &roundTripper{
			profile:        r.Profile,
			proxies:        r.Proxies,
			connectTimeout: ConnectTimeout(r.Timeout),
			insecure:       c.insecure,
		},
		Jar:           jar,
		Timeout:       r.Timeout,
		CheckRedirect: c.checkRedirect,
	}

	c.logger.Debug("hop request",
		"kind", r.Kind,
		"method", r.Method,
		"host", req.URL.Host,
		"fingerprint", profileID(r.Profile),
	)

	start := time.Now()
	resp, err := hc.Do(req) //nolint:bodyclose // body ownership transfers to caller via HopResponse
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.HopDuration.WithLabelValues(r.Kind).Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("hop request: %w", err)
	}
	if c.metrics != nil {
		c.metrics.HopResponses.WithLabelValues(r.Kind, strconv.Itoa(resp.StatusCode)).Inc()
	}

	body := resp.Body
	if r.Decode {
		body, err = decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("decode body: %w", err)
		}
	}

	return &model.HopResponse{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Elapsed:    elapsed,
		Header:     resp.Header,
		Cookies:    collectCookies(jar, resp),
		Body:       model.NewBody(body),
	}, nil
}

func (c *Client) checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
	}
	return nil
}

// collectCookies returns the cookies set while resolving the request,
// including those from intermediate redirects.
func collectCookies(jar http.CookieJar, resp *http.Response) map[string]string {
	cookies := make(map[string]string)
	for _, ck := range jar.Cookies(resp.Request.URL) {
		cookies[ck.Name] = ck.Value
	}
	for _, ck := range resp.Cookies() {
		cookies[ck.Name] = ck.Value
	}
	return cookies
}

func profileID(p *fingerprint.Profile) string {
	if p == nil {
		return ""
	}
	return p.ID
}
