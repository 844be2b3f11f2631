// Package pollinations is an HTTP client for the Pollinations image
// generation endpoint.
package pollinations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// DefaultBaseURL is the public Pollinations endpoint.
const DefaultBaseURL = "https://image.pollinations.ai"

// Compile-time check: Client implements domain.ImageProvider.
var _ domain.ImageProvider = (*Client)(nil)

// Client fetches generated images by embedding the prompt in the request URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds image provider settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a Pollinations client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}
}

// Fetch performs a single GET against the provider. The prompt travels
// URL-encoded in the path; model and dimensions in the query string.
func (c *Client) Fetch(ctx context.Context, req domain.ImageRequest) (domain.ImageResponse, error) {
	query := url.Values{}
	query.Set("model", req.Model)
	query.Set("width", strconv.Itoa(req.Width))
	query.Set("height", strconv.Itoa(req.Height))
	query.Set("seed", strconv.Itoa(req.Seed))

	reqURL := fmt.Sprintf("%s/prompt/%s?%s", c.baseURL, url.PathEscape(req.Prompt), query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.ImageResponse{}, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ImageResponse{}, fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ImageResponse{}, fmt.Errorf("read image body: %w", err)
	}

	return domain.ImageResponse{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}
