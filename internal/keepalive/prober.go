package keepalive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultProbeTimeout = 8 * time.Second
	defaultUserAgent    = "pingkeeper/1.0 (+keep-alive)"

	// drainLimit caps how much of a response body is read before close.
	drainLimit = 64 << 10
)

// Prober performs one reachability check.
type Prober interface {
	Probe(ctx context.Context, target string) Result
}

// HTTPProber issues a GET and treats any completed response as success.
type HTTPProber struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
}

func NewHTTPProber(timeout time.Duration, userAgent string) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPProber{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout: timeout,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Timeout:   timeout,
		UserAgent: userAgent,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, target string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Reason: fmt.Sprintf("probe panic: %v", r)}
		}
		res.Latency = time.Since(start)
	}()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Reason: fmt.Sprintf("invalid request: %v", err)}
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Reason: describeError(ctx, err, timeout)}
	}
	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	_ = resp.Body.Close()
	return Result{OK: true, Status: resp.StatusCode}
}

func describeError(ctx context.Context, err error, timeout time.Duration) string {
	var nerr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &nerr) && nerr.Timeout():
		return fmt.Sprintf("timeout after %s", timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return "probe canceled"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}
