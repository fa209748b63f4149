// Package backend is the HTTP client for the image-discovery backend: the
// search endpoint and the streaming chat endpoint.
package backend

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

	"github.com/atangai/atang/internal/assistant"
)

const streamReadBufferSize = 4096

// SearchResult is one hit from the search endpoint.
type SearchResult struct {
	Prompt     string  `json:"prompt"`
	ImageURL   string  `json:"image_url"`
	ClipScore  float64 `json:"clipscore"`
	Similarity float64 `json:"similarity,omitempty"`
}

// SearchResponse is the search endpoint response shape.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// HealthResponse is the backend liveness response.
type HealthResponse struct {
	Status string `json:"status"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// Client talks to the backend over HTTP. Chat responses are plain-text
// streams; whatever chunk sizes the transport delivers are passed through
// untouched, the decoder downstream owns reassembly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. The timeout bounds every request,
// including a full chat stream; a stalled stream is cut off rather than
// holding the session gate forever.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search queries the backend for images matching q.
func (c *Client) Search(ctx context.Context, q string) (SearchResponse, error) {
	endpoint := c.baseURL + "/search?q=" + url.QueryEscape(q)
	var out SearchResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return SearchResponse{}, err
	}
	return out, nil
}

// DefaultImages fetches the initial result set shown before any query.
func (c *Client) DefaultImages(ctx context.Context) (SearchResponse, error) {
	var out SearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/images", &out); err != nil {
		return SearchResponse{}, err
	}
	return out, nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, c.baseURL+"/health", &out); err != nil {
		return HealthResponse{}, err
	}
	return out, nil
}

// StreamChat posts one chat turn and delivers the response body to onChunk
// in arrival order until EOF.
func (c *Client) StreamChat(ctx context.Context, req assistant.ChatRequest, onChunk func(string)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat endpoint: %s", readErrorDetail(resp))
	}

	buf := make([]byte, streamReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			onChunk(string(buf[:n]))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read chat stream: %w", err)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: %s", readErrorDetail(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorDetail extracts the backend's error detail when present, falling
// back to the HTTP status.
func readErrorDetail(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Detail != "" {
			return ae.Detail
		}
	}
	return resp.Status
}
