// Package httputil provides shared HTTP plumbing for talking to a running
// bastion gateway: pooled clients per timeout tier, a retrying request
// helper, and safe response-body handling.
package httputil

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize is the default maximum size for reading HTTP response bodies.
// This prevents OOM from a misbehaving or compromised gateway.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with connection pooling. Safe for concurrent use;
// reusing TCP connections matters during batch scans.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for gateway operations.
type TimeoutTier int

const (
	// TierFast for health checks and session lifecycle calls (5s)
	TierFast TimeoutTier = iota
	// TierScan for single scan and turn submissions (15s)
	TierScan
	// TierAnalysis for full-session analysis and transcript replay (60s)
	TierAnalysis
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:     5 * time.Second,
	TierScan:     15 * time.Second,
	TierAnalysis: 60 * time.Second,
}

// Singleton clients per tier, sharing one connection pool.
var (
	clientFast     *http.Client
	clientScan     *http.Client
	clientAnalysis *http.Client
	clientOnce     sync.Once
)

func initClients() {
	clientFast = &http.Client{
		Timeout:   timeoutDurations[TierFast],
		Transport: sharedTransport,
	}
	clientScan = &http.Client{
		Timeout:   timeoutDurations[TierScan],
		Transport: sharedTransport,
	}
	clientAnalysis = &http.Client{
		Timeout:   timeoutDurations[TierAnalysis],
		Transport: sharedTransport,
	}
}

// Client returns a shared HTTP client for the given timeout tier.
// These clients share a connection pool and should be used instead of
// creating new http.Client instances per request.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierScan:
		return clientScan
	case TierAnalysis:
		return clientAnalysis
	default:
		return clientScan
	}
}

// FastClient returns a client with 5s timeout (health checks, session lifecycle).
func FastClient() *http.Client {
	return Client(TierFast)
}

// ScanClient returns a client with 15s timeout (scan and turn submissions).
func ScanClient() *http.Client {
	return Client(TierScan)
}

// AnalysisClient returns a client with 60s timeout (session analysis, replay).
func AnalysisClient() *http.Client {
	return Client(TierAnalysis)
}

// RetryPolicy controls DoWithRetry. The zero value means 3 attempts with a
// 200ms initial backoff, doubled per retry.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return 3
	}
	return p.Attempts
}

func (p RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return 200 * time.Millisecond
	}
	return p.Backoff
}

// retryable reports whether a response status warrants another attempt.
// 5xx means the gateway hiccuped; 429 means it asked us to back off.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// DoWithRetry issues a request built by build, retrying transport errors and
// retryable statuses with exponential backoff. build is called once per
// attempt so request bodies are fresh. The caller owns the returned
// response body.
func DoWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := policy.backoff()

	for attempt := 0; attempt < policy.attempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if retryable(resp.StatusCode) {
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			DrainAndClose(resp.Body)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// StatusError reports a retryable HTTP status that persisted through all
// attempts.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "gateway returned status " + http.StatusText(e.StatusCode)
}

// ReadResponseBody safely reads an HTTP response body with size limits.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads the response body for error messages with a reasonable limit.
// Uses a smaller limit (1MB) since error messages shouldn't be large.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose properly drains and closes an HTTP response body.
// This ensures connection reuse in the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
