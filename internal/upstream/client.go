// Package upstream talks to the Apps Script metrics API and to user webhooks.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/util"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 1 << 20

// ErrInvalidMetrics is returned when the metrics response lacks a required series.
var ErrInvalidMetrics = errors.New("invalid response format from Apps Script metrics API")

// APIError is a non-2xx answer from the metrics API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}

// MetricsValue is one point of a metrics series.
type MetricsValue struct {
	Value     string `json:"value,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ScriptMetrics is the Apps Script projects.getMetrics response.
type ScriptMetrics struct {
	ActiveUsers      []MetricsValue `json:"activeUsers"`
	TotalExecutions  []MetricsValue `json:"totalExecutions"`
	FailedExecutions []MetricsValue `json:"failedExecutions"`
}

// Notification is the body POSTed to a user's webhook.
type Notification struct {
	ScriptID string         `json:"scriptId"`
	Data     *ScriptMetrics `json:"data"`
}

// Client handles communication with the metrics API and webhook receivers.
type Client struct {
	httpClient     *http.Client
	metricsBaseURL string
}

// NewClient creates a new upstream client. A nil httpClient gets a 30s timeout.
func NewClient(httpClient *http.Client, metricsBaseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:     httpClient,
		metricsBaseURL: strings.TrimRight(metricsBaseURL, "/"),
	}
}

// FetchMetrics loads daily execution metrics for scriptID.
func (c *Client) FetchMetrics(ctx context.Context, accessToken, scriptID string) (*ScriptMetrics, error) {
	endpoint := fmt.Sprintf("%s/v1/projects/%s/metrics?metricsGranularity=DAILY", c.metricsBaseURL, url.PathEscape(scriptID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read metrics response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: util.TruncateBytes(body)}
	}

	return decodeMetrics(body)
}

// decodeMetrics validates the response shape once, at the boundary.
func decodeMetrics(body []byte) (*ScriptMetrics, error) {
	var raw struct {
		ActiveUsers      *[]MetricsValue `json:"activeUsers"`
		TotalExecutions  *[]MetricsValue `json:"totalExecutions"`
		FailedExecutions *[]MetricsValue `json:"failedExecutions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetrics, err)
	}
	if raw.ActiveUsers == nil || raw.TotalExecutions == nil || raw.FailedExecutions == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetrics, util.TruncateBytes(body))
	}
	return &ScriptMetrics{
		ActiveUsers:      *raw.ActiveUsers,
		TotalExecutions:  *raw.TotalExecutions,
		FailedExecutions: *raw.FailedExecutions,
	}, nil
}

// SendWebhook POSTs the notification as JSON. Any non-2xx answer is an error.
func (c *Client) SendWebhook(ctx context.Context, webhookURL string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("webhook notification failed: status %d: %s", resp.StatusCode, util.TruncateLog(string(body), 256))
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}
