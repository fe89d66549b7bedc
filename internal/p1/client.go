package p1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	requestTimeout = 10 * time.Second
)

// Client talks to the local API of a HomeWizard P1 meter.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Info describes the HomeWizard device.
type Info struct {
	ProductName string `json:"product_name"`
	ProductType string `json:"product_type"`
	Serial      string `json:"serial"`
	Firmware    string `json:"firmware_version"`
	APIVersion  string `json:"api_version"`
}

func NewClient(baseURL string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("homewizard base_url is required")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	bytes, err := c.getBytes(ctx, "/api")
	if err != nil {
		return Info{}, err
	}
	if err := json.Unmarshal(bytes, &info); err != nil {
		return Info{}, fmt.Errorf("decode /api: %w", err)
	}
	return info, nil
}

// Telegram returns the most recent raw telegram seen by the meter.
func (c *Client) Telegram(ctx context.Context) (Telegram, error) {
	bytes, err := c.getBytes(ctx, "/api/v1/telegram")
	if err != nil {
		return "", err
	}
	return Telegram(bytes), nil
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request %s: %s", endpoint, strings.TrimSpace(string(payload)))
	}

	return payload, nil
}
