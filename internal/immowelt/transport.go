// Package immowelt implements the platform API client: listing search,
// contact requests and session refresh, all funnelled through a bounded-retry
// caller that survives the platform's anti-bot countermeasures.
package immowelt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Browser identity presented on every call. The platform serves CAPTCHA
// challenges to clients it does not recognize as a mainstream browser.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const requestTimeout = 30 * time.Second

// Request is one outbound API call: complete and self-contained, so a retry
// can replay it wholesale.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Cookies map[string]string
	Body    []byte
	Proxy   string // per-call proxy URL, "" for direct
}

// Response is the reduced view of an HTTP response the engine needs.
// Cookies holds Set-Cookie values by name (refresh returns new tokens there).
type Response struct {
	StatusCode int
	Body       []byte
	Cookies    map[string]string
}

// Transport executes a single Request. The production implementation is
// HTTPTransport below; tests substitute fakes.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the default net/http-backed Transport. One underlying
// client is kept per proxy URL so connections are reused across calls.
// An optional global rate limiter caps outbound request volume.
type HTTPTransport struct {
	limiter *rate.Limiter // nil means unlimited

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL
}

// NewHTTPTransport builds a transport. rps <= 0 disables the rate cap.
func NewHTTPTransport(rps float64) *HTTPTransport {
	t := &HTTPTransport{clients: make(map[string]*http.Client)}
	if rps > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return t
}

func (t *HTTPTransport) client(proxy string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxy]; ok {
		return c, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
		// Redirects are part of the external login dance, not of API calls.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	t.clients[proxy] = c
	return c, nil
}

// Do executes req once. Non-2xx statuses are returned as a Response, not an
// error; only transport-level failures produce an error.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	client, err := t.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "*/*")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	cookies := make(map[string]string)
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}

	return &Response{StatusCode: resp.StatusCode, Body: data, Cookies: cookies}, nil
}
