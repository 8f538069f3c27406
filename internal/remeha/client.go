// Package remeha talks to the Remeha Home mobile API on behalf of one account.
package remeha

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

const (
	DefaultBaseURL = "https://api.bdrthermea.net/Mobile/api"

	subscriptionKey = "df605c5470d846fc91e848b1cc653ddf"
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 4 << 20
)

// Client is a thin wrapper over the vendor REST API. Non-200 answers are
// reported as absent results with a nil error; only transport failures are
// returned as errors.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, accessToken string, httpClient *http.Client, logger *slog.Logger) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		http:        httpClient,
		logger:      logger.With("component", "remeha_api"),
		accessToken: accessToken,
	}
}

// SetAccessToken replaces the bearer token used by subsequent requests.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Devices lists every appliance with at least one climate zone.
func (c *Client) Devices(ctx context.Context) ([]model.DeviceState, error) {
	dashboard, err := c.dashboard(ctx)
	if err != nil || dashboard == nil {
		return nil, err
	}
	devices := make([]model.DeviceState, 0, len(dashboard.Appliances))
	for _, a := range dashboard.Appliances {
		if state, ok := a.deviceState(); ok {
			devices = append(devices, state)
		}
	}
	return devices, nil
}

// Device returns the climate zone with id, or nil when the dashboard does not
// list it or could not be fetched.
func (c *Client) Device(ctx context.Context, id string) (*model.DeviceState, error) {
	dashboard, err := c.dashboard(ctx)
	if err != nil || dashboard == nil {
		return nil, err
	}
	a, ok := dashboard.find(id)
	if !ok {
		return nil, nil
	}
	state, _ := a.deviceState()
	return &state, nil
}

// Capabilities returns the feature set of the appliance owning climate zone id.
func (c *Client) Capabilities(ctx context.Context, id string) (*model.DeviceCapabilities, error) {
	dashboard, err := c.dashboard(ctx)
	if err != nil || dashboard == nil {
		return nil, err
	}
	a, ok := dashboard.find(id)
	if !ok {
		return nil, nil
	}
	caps := a.capabilities()
	return &caps, nil
}

// Debug returns the raw dashboard payload.
func (c *Client) Debug(ctx context.Context) (json.RawMessage, error) {
	body, ok, err := c.call(ctx, http.MethodGet, "/homes/dashboard", nil)
	if err != nil || !ok {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// SetTargetTemperature changes the room setpoint. A zone in manual mode keeps
// its mode; any other zone gets a temporary override.
func (c *Client) SetTargetTemperature(ctx context.Context, id string, value float64) error {
	device, err := c.Device(ctx, id)
	if err != nil || device == nil {
		return err
	}
	path := zonePath(id, "/modes/temporary-override")
	if device.Mode == model.ModeManual {
		path = zonePath(id, "/modes/manual")
	}
	_, _, err = c.call(ctx, http.MethodPost, path, map[string]any{"roomTemperatureSetPoint": value})
	return err
}

// SetMode switches the zone to manual, auto (schedule) or off (anti-frost).
func (c *Client) SetMode(ctx context.Context, id string, mode model.Mode) error {
	switch mode {
	case model.ModeManual, model.ModeAuto, model.ModeOff:
	default:
		return ErrUnknownMode
	}
	caps, err := c.Capabilities(ctx, id)
	if err != nil || caps == nil {
		return err
	}
	device, err := c.Device(ctx, id)
	if err != nil || device == nil {
		return err
	}

	switch mode {
	case model.ModeManual:
		_, _, err = c.call(ctx, http.MethodPost, zonePath(id, "/modes/manual"),
			map[string]any{"roomTemperatureSetPoint": device.TargetTemperature})
	case model.ModeAuto:
		program := 1
		if caps.MultiSchedule && device.HeatingProgramID != nil && *device.HeatingProgramID != 0 {
			program = *device.HeatingProgramID
		}
		_, _, err = c.call(ctx, http.MethodPost, zonePath(id, "/modes/schedule"),
			map[string]any{"heatingProgramId": program})
	case model.ModeOff:
		_, _, err = c.call(ctx, http.MethodPost, zonePath(id, "/modes/anti-frost"), nil)
	}
	return err
}

// SetFireplaceMode toggles fireplace mode on the zone.
func (c *Client) SetFireplaceMode(ctx context.Context, id string, active bool) error {
	_, _, err := c.call(ctx, http.MethodPost, zonePath(id, "/modes/fireplacemode"),
		map[string]any{"fireplaceModeActive": active})
	return err
}

func (c *Client) dashboard(ctx context.Context) (*dashboardResponse, error) {
	body, ok, err := c.call(ctx, http.MethodGet, "/homes/dashboard", nil)
	if err != nil || !ok {
		return nil, err
	}
	var dashboard dashboardResponse
	if err := json.Unmarshal(body, &dashboard); err != nil {
		return nil, &TransportError{Method: http.MethodGet, Path: "/homes/dashboard", Err: err}
	}
	return &dashboard, nil
}

func (d *dashboardResponse) find(id string) (appliance, bool) {
	for _, a := range d.Appliances {
		if zone, ok := a.primaryZone(); ok && zone.ClimateZoneID == id {
			return a, true
		}
	}
	return appliance{}, false
}

func zonePath(id, suffix string) string {
	return "/climate-zones/" + id + suffix
}

// call performs one request. ok is false for any status other than 200.
func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, bool, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, false, &TransportError{Method: method, Path: path, Err: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, false, &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Ocp-Apim-Subscription-Key", subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.Debug("api call failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, false, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, false, &TransportError{Method: method, Path: path, Err: err}
	}
	return raw, true, nil
}
