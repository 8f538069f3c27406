package model

import "time"

// Device is a paired climate zone as stored by the add-on.
type Device struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DebugEnabled bool      `json:"debug_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeviceSnapshot is the last state written to the sink for one device.
type DeviceSnapshot struct {
	Device
	Status          Status         `json:"status"`
	StatusReason    string         `json:"status_reason,omitempty"`
	StatusUpdatedAt *time.Time     `json:"status_updated_at,omitempty"`
	Slots           []string       `json:"slots"`
	Values          map[string]any `json:"values"`
}
