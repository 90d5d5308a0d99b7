package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lox/spirulinasite/internal/httputil"
	"github.com/lox/spirulinasite/internal/metrics"
)

// ErrNetwork covers every way the remote call can fail: transport errors,
// timeouts, non-2xx responses and bodies that are not JSON.
var ErrNetwork = errors.New("analysis service unavailable")

// UserMessage is the only text shown to users for a failed analysis.
const UserMessage = "Analysis failed. Please check your connection and try again."

const maxBodyBytes = 8 << 20

// Request identifies the site to analyse.
type Request struct {
	Location  string  `json:"location"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Response is a successful analysis response. Payload is the decoded JSON
// value with no assumptions about its shape.
type Response struct {
	Payload    any
	Body       []byte
	HTTPStatus int
	Duration   time.Duration
}

// Client calls the remote analysis service. It performs exactly one round
// trip per Analyze call.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   httputil.NewClient(timeout),
		logger:   logger,
	}
}

// Analyze posts the request and decodes the response body. Failures wrap
// ErrNetwork.
func (c *Client) Analyze(ctx context.Context, siteID string, req Request) (*Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	elapsed := time.Since(start)
	metrics.AnalysisAPILatency.WithLabelValues(siteID).Observe(elapsed.Seconds())
	if err != nil {
		metrics.AnalysisAPICallsTotal.WithLabelValues(siteID, "error").Inc()
		c.logger.Warn("analysis request failed", zap.String("site", siteID), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%d", resp.StatusCode)
	metrics.AnalysisAPICallsTotal.WithLabelValues(siteID, status).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("analysis service error",
			zap.String("site", siteID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)))
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrNetwork, err)
	}

	c.logger.Debug("analysis response received",
		zap.String("site", siteID),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", elapsed))

	return &Response{
		Payload:    payload,
		Body:       body,
		HTTPStatus: resp.StatusCode,
		Duration:   elapsed,
	}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
