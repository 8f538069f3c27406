package model

import "time"

const minPollInterval = 10 * time.Second

// Settings represents the add-on options published by the Home Assistant
// integration.
type Settings struct {
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
}

// PollInterval returns the configured interval, or fallback when unset.
func (s Settings) PollInterval(fallback time.Duration) time.Duration {
	if s.PollIntervalSec <= 0 {
		return fallback
	}
	interval := time.Duration(s.PollIntervalSec) * time.Second
	if interval < minPollInterval {
		return minPollInterval
	}
	return interval
}
