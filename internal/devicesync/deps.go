// Package devicesync keeps each paired Remeha device in sync with the vendor
// API: one timer-driven Instance per device, held in a Registry.
package devicesync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/auth"
	"github.com/micro-ha/remeha-home/addon/internal/model"
)

var (
	ErrInactive           = errors.New("device instance is not active")
	ErrCommandUnsupported = errors.New("command not supported by device")
	ErrTornDown           = errors.New("device instance was torn down")
)

const (
	DefaultPollInterval = time.Minute
	DefaultInitialDelay = 2 * time.Second
	DefaultTickTimeout  = 30 * time.Second
)

// Reasons reported with StatusUnavailable.
const (
	ReasonTokenLoad      = "Could not load stored access token"
	ReasonTokenRefresh   = "Could not refresh access token"
	ReasonFetchFailed    = "Could not fetch thermostat data"
	ReasonDeviceNotFound = "Could not find thermostat data"
	ReasonSetTarget      = "Could not set target temperature"
	ReasonSetMode        = "Could not set thermostat mode"
	ReasonSetFireplace   = "Could not set fireplace mode"
)

// TokenStore persists the credential set of each device.
type TokenStore interface {
	LoadTokens(ctx context.Context, id string) (model.TokenData, error)
	SaveTokens(ctx context.Context, id string, tokens model.TokenData) error
}

// Sink receives the externally visible state of each device.
type Sink interface {
	SetStatus(ctx context.Context, id string, status model.Status, reason string) error
	SetSlots(ctx context.Context, id string, slots []string) error
	SetValues(ctx context.Context, id string, values map[string]any) error
}

// DebugStore holds the per-device diagnostic flag and payload.
type DebugStore interface {
	DebugEnabled(ctx context.Context, id string) (bool, error)
	SaveDebugPayload(ctx context.Context, id string, payload json.RawMessage) error
}

// Refresher exchanges a refresh token for a new credential set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenData, error)
}

// APIClient is the subset of the vendor client an instance drives.
type APIClient interface {
	SetAccessToken(token string)
	Device(ctx context.Context, id string) (*model.DeviceState, error)
	Capabilities(ctx context.Context, id string) (*model.DeviceCapabilities, error)
	Debug(ctx context.Context) (json.RawMessage, error)
	SetTargetTemperature(ctx context.Context, id string, value float64) error
	SetMode(ctx context.Context, id string, mode model.Mode) error
	SetFireplaceMode(ctx context.Context, id string, active bool) error
}

// ClientFactory builds an API client for one instance.
type ClientFactory func() APIClient

// Deps are the collaborators shared by every instance.
type Deps struct {
	Tokens    TokenStore
	Sink      Sink
	Debug     DebugStore
	Auth      Refresher
	NewClient ClientFactory
	Freshness auth.Freshness
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Freshness == "" {
		d.Freshness = auth.FreshnessClaim
	}
	return d
}

// Options control instance timing.
type Options struct {
	PollInterval time.Duration
	InitialDelay time.Duration
	TickTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = DefaultTickTimeout
	}
	return o
}
