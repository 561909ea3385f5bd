// Package remote is the HTTP client for a running bastion gateway. The CLI
// uses it for remote scans and session operations; batch scanning fans out
// over a bounded semaphore so large prompt files stay polite.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/HoldfastAI/bastion/pkg/httputil"
	"github.com/HoldfastAI/bastion/pkg/scan"
)

// DefaultBatchConcurrency bounds in-flight requests during ScanBatch.
const DefaultBatchConcurrency = 8

// ScanRequest is the body for POST /scan.
type ScanRequest struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// TurnRequest is the body for POST /sessions/:id/turns.
type TurnRequest struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response,omitempty"`
}

// StartSessionResponse is the body returned by POST /sessions.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

// HealthResponse is the body returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the error envelope all gateway endpoints use.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx gateway reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway error: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to a bastion gateway.
type Client struct {
	base   string
	fast   *http.Client
	scan   *http.Client
	slow   *http.Client
	policy httputil.RetryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides all three tier clients, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.fast = hc
		c.scan = hc
		c.slow = hc
	}
}

// WithRetryPolicy overrides the default retry behavior.
func WithRetryPolicy(p httputil.RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// New creates a gateway client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		fast: httputil.FastClient(),
		scan: httputil.ScanClient(),
		slow: httputil.AnalysisClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks the gateway's /healthz endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.call(ctx, c.fast, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scan submits a single prompt for scanning. declared may be empty to let
// the gateway classify the context itself.
func (c *Client) Scan(ctx context.Context, text, declared string) (*scan.ThreatScore, error) {
	var out scan.ThreatScore
	req := ScanRequest{Text: text, Context: declared}
	if err := c.call(ctx, c.scan, http.MethodPost, "/scan", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession opens a new tracked session and returns its id.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	var out StartSessionResponse
	if err := c.call(ctx, c.fast, http.MethodPost, "/sessions", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// AddTurn submits one conversation turn to a session.
func (c *Client) AddTurn(ctx context.Context, sessionID, prompt, response string) (*scan.TurnResult, error) {
	var out scan.TurnResult
	req := TurnRequest{Prompt: prompt, Response: response}
	path := "/sessions/" + sessionID + "/turns"
	if err := c.call(ctx, c.scan, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze fetches the full analysis for a session.
func (c *Client) Analyze(ctx context.Context, sessionID string) (*scan.ConversationAnalysis, error) {
	var out scan.ConversationAnalysis
	path := "/sessions/" + sessionID + "/analysis"
	if err := c.call(ctx, c.slow, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndSession closes a session on the gateway.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, c.fast, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
}

// BatchResult pairs one batch prompt with its scan outcome.
type BatchResult struct {
	Index  int
	Prompt string
	Score  *scan.ThreatScore
	Err    error
}

// ScanBatch scans prompts concurrently, at most concurrency requests in
// flight. Results come back in input order; per-prompt failures are
// reported in the result rather than aborting the batch.
func (c *Client) ScanBatch(ctx context.Context, prompts []string, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	sem := httputil.NewSemaphore(concurrency)
	results := make([]BatchResult, len(prompts))

	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			results[i] = BatchResult{Index: i, Prompt: prompt}
			err := sem.Do(ctx, func() error {
				score, err := c.Scan(ctx, prompt, "")
				if err != nil {
					return err
				}
				results[i].Score = score
				return nil
			})
			results[i].Err = err
		}(i, prompt)
	}
	wg.Wait()
	return results
}

// call issues one JSON request/response exchange with retries.
func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := httputil.DoWithRetry(ctx, hc, c.policy, func() (*http.Request, error) {
		req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if data, err := httputil.ReadErrorBody(resp.Body); err == nil {
			var env ErrorResponse
			if json.Unmarshal(data, &env) == nil && env.Error != "" {
				apiErr.Message = env.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	data, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
