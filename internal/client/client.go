// Package client queries a running herdmarket server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/reporting"
)

// Health is the server's /healthz payload.
type Health struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
	Steps   int    `json:"steps"`
	Clients int    `json:"clients"`
}

// Client is a thin HTTP client for the server's JSON API.
type Client struct {
	client *resty.Client
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Accept", "application/json")
	return &Client{client: client}
}

// Health fetches the server status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Summary fetches the summary of the steps the server retains.
func (c *Client) Summary(ctx context.Context) (*reporting.Summary, error) {
	var s reporting.Summary
	if err := c.get(ctx, "/api/summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Steps fetches the model records of the last n steps.
func (c *Client) Steps(ctx context.Context, n int) ([]engine.ModelRecord, error) {
	var models []engine.ModelRecord
	params := map[string]string{"n": strconv.Itoa(n)}
	if err := c.get(ctx, "/api/steps", params, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
