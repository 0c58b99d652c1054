package semdex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Option configures the Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.http = hc
	})
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return optionFunc(func(c *Client) {
		c.userAgent = ua
	})
}

// Client is the semdex HTTP API client.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: "semdex-go-sdk",
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// Ingest submits a document for chunking and embedding.
func (c *Client) Ingest(ctx context.Context, documentID string, req IngestRequest) (IngestResult, error) {
	var out IngestResult
	path := "/documents/" + url.PathEscape(documentID) + "/ingest"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return IngestResult{}, err
	}
	return out, nil
}

// JobStatus fetches the ingestion job state for a document.
func (c *Client) JobStatus(ctx context.Context, documentID string) (Job, error) {
	var out Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(documentID), nil, &out); err != nil {
		return Job{}, err
	}
	return out, nil
}

// Search runs a semantic search over all indexed chunks.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/search", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DeleteDocument removes a document's embeddings and metadata.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(documentID), nil, nil)
}

// SweepJobs marks processing jobs older than the given age as failed.
// Returns the number of jobs swept.
func (c *Client) SweepJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	req := map[string]int{"older_than_sec": int(olderThan / time.Second)}
	var out struct {
		FailedJobs int `json:"failed_jobs"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs/sweep", req, &out); err != nil {
		return 0, err
	}
	return out.FailedJobs, nil
}

// Health checks the health of the service and its dependencies.
// A degraded service responds with 503; the report is still returned.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("semdex: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("semdex: GET /healthz: %w", err)
	}
	defer resp.Body.Close()

	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthStatus{}, fmt.Errorf("semdex: decode response: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("semdex: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("semdex: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("semdex: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("semdex: decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		apiErr.Message = "failed to read error body"
		return apiErr
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
