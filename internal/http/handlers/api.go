package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/pairing"
)

// DeviceRepository reads and edits paired devices.
type DeviceRepository interface {
	ListSnapshots(ctx context.Context) ([]model.DeviceSnapshot, error)
	Snapshot(ctx context.Context, id string) (model.DeviceSnapshot, error)
	GetDevice(ctx context.Context, id string) (model.Device, error)
	UpsertDevice(ctx context.Context, device model.Device) error
	DeleteDevice(ctx context.Context, id string) error
	SetDebugEnabled(ctx context.Context, id string, enabled bool) error
	DebugPayload(ctx context.Context, id string) (json.RawMessage, error)
}

// TokenDeleter removes tokens kept outside the device repository.
type TokenDeleter interface {
	DeleteTokens(ctx context.Context, id string) error
}

// DeviceController routes commands to the running device instances.
type DeviceController interface {
	SetTargetTemperature(ctx context.Context, id string, value float64) error
	SetMode(ctx context.Context, id string, mode model.Mode) error
	SetFireplaceMode(ctx context.Context, id string, active bool) error
	Status(id string) (model.Status, string, bool)
	Remove(id string) bool
	TriggerAll()
}

// Pairing runs account login, device selection and repair.
type Pairing interface {
	Login(ctx context.Context, email, password string) (pairing.Session, error)
	ListDevices(ctx context.Context, sessionID string) ([]pairing.Candidate, error)
	Debug(sessionID string) (json.RawMessage, error)
	AddDevices(ctx context.Context, sessionID string, ids []string) ([]model.Device, error)
	Repair(ctx context.Context, deviceID, email, password string) error
}

// SettingsProvider exposes the settings published by the integration.
type SettingsProvider interface {
	Get() (model.Settings, bool)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// API groups HTTP handlers and dependencies.
type API struct {
	devices    DeviceRepository
	tokens     TokenDeleter
	controller DeviceController
	pairing    Pairing
	settings   SettingsProvider
	checks     map[string]HealthCheck
	logger     *slog.Logger
}

// New creates HTTP handlers with explicit dependencies. tokens may be nil
// when tokens live in the device repository.
func New(
	devices DeviceRepository,
	tokens TokenDeleter,
	controller DeviceController,
	pairing Pairing,
	settings SettingsProvider,
	checks map[string]HealthCheck,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		devices:    devices,
		tokens:     tokens,
		controller: controller,
		pairing:    pairing,
		settings:   settings,
		checks:     checks,
		logger:     logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness, dependency checks and whether the integration has
// published settings.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	_, configured := a.settings.Get()
	status := http.StatusOK
	checks := map[string]string{}
	for name, check := range a.checks {
		if err := check(r.Context()); err != nil {
			a.logger.Warn("health check failed", "check", name, "err", err)
			checks[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "configured": configured, "checks": checks})
}

// Refresh triggers an immediate tick on every device.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.controller.TriggerAll()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
