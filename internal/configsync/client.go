// Package configsync pulls the add-on settings published by the Home
// Assistant integration and watches for changes.
package configsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

const settingsPath = "/api/remeha_home/config"

type FetchResult struct {
	Configured bool
	Settings   model.Settings
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://supervisor/core"
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type settingsResponse struct {
	Configured      bool      `json:"configured"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
}

// FetchSettings reads the integration settings. A 404 means the integration
// is not installed and is reported as not configured.
func (c *Client) FetchSettings(ctx context.Context) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+settingsPath, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return FetchResult{Configured: false}, nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return FetchResult{}, fmt.Errorf("settings fetch status %d: %s", resp.StatusCode, string(body))
	}

	var payload settingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FetchResult{}, err
	}
	if !payload.Configured {
		return FetchResult{Configured: false}, nil
	}
	return FetchResult{
		Configured: true,
		Settings: model.Settings{
			Version:         payload.Version,
			UpdatedAt:       payload.UpdatedAt.UTC(),
			PollIntervalSec: payload.PollIntervalSec,
		},
	}, nil
}
