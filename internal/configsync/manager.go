package configsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

// Manager caches the settings published by the integration and notifies
// listeners whenever the published version changes or the integration goes
// away.
type Manager struct {
	client   *Client
	logger   *slog.Logger
	fallback time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	settings  *model.Settings
	refreshed time.Time
	listeners []func(model.Settings)
}

// NewManager returns a Manager whose poll interval falls back to fallback
// until the integration publishes one.
func NewManager(client *Client, fallback time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		logger:   logger.With("component", "configsync"),
		fallback: fallback,
		now:      time.Now,
	}
}

// OnChange registers fn to run after every Refresh that changed the settings.
// Unconfigured integrations are reported as zero Settings.
func (m *Manager) OnChange(fn func(model.Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Refresh fetches the settings and reports whether they changed.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	res, err := m.client.FetchSettings(ctx)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.refreshed = m.now()
	var next *model.Settings
	if res.Configured {
		settings := res.Settings
		next = &settings
	}
	changed := !sameVersion(m.settings, next)
	m.settings = next
	listeners := append(([]func(model.Settings))(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return false, nil
	}
	current := model.Settings{}
	if next != nil {
		current = *next
		m.logger.Info("settings updated",
			"version", current.Version,
			"poll_interval", current.PollInterval(m.fallback).String(),
		)
	} else {
		m.logger.Warn("integration settings withdrawn; using defaults")
	}
	for _, fn := range listeners {
		fn(current)
	}
	return true, nil
}

func sameVersion(prev, next *model.Settings) bool {
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	return prev.Version == next.Version
}

// Get returns the cached settings and whether the integration published any.
func (m *Manager) Get() (model.Settings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return model.Settings{}, false
	}
	return *m.settings, true
}

// PollInterval returns the interval the integration asks for, or the fallback.
func (m *Manager) PollInterval() time.Duration {
	settings, _ := m.Get()
	return settings.PollInterval(m.fallback)
}

// RefreshedAt returns when settings were last fetched successfully.
func (m *Manager) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshed
}
