package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPPublisher posts events to a REST push service:
// POST {base}/channels/{channel}/messages with body {"name": type, "data": event}.
type HTTPPublisher struct {
	baseURL string
	apiKey  string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
	backoff  time.Duration
}

type HTTPOption func(*HTTPPublisher)

func WithHTTPTimeout(d time.Duration) HTTPOption { return func(p *HTTPPublisher) { p.timeout = d } }

func WithHTTPRetry(max int) HTTPOption { return func(p *HTTPPublisher) { p.retryMax = max } }

func WithHTTPBackoff(base time.Duration) HTTPOption {
	return func(p *HTTPPublisher) { p.backoff = base }
}

func NewHTTPPublisher(baseURL, apiKey string, opts ...HTTPOption) *HTTPPublisher {
	p := &HTTPPublisher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 32},
		timeout:  5 * time.Second,
		retryMax: 3,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type httpMessage struct {
	Name string `json:"name"`
	Data Event  `json:"data"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(httpMessage{Name: ev.Type, Data: ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(p.baseURL + "/channels/" + url.PathEscape(channel) + "/messages")
	req.Header.SetContentType("application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(p.apiKey)))
	}
	req.SetBody(payload)

	attempts := max(p.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.http.DoDeadline(req, resp, p.deadline(ctx))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("publish %s: %w", channel, err)
		case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
			return nil
		default:
			lastErr = fmt.Errorf("publish %s: status=%d body=%s", channel, resp.StatusCode(), truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(resp.StatusCode()) {
				return lastErr
			}
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, p.backoffFor(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p *HTTPPublisher) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(p.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func (p *HTTPPublisher) backoffFor(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * p.backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
