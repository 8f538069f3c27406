package model

import (
	"fmt"
	"strings"
)

// Mode is the canonical thermostat mode exposed to Home Assistant.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
	ModeOff    Mode = "off"
)

// ParseMode accepts only the three canonical modes.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeManual:
		return ModeManual, nil
	case ModeAuto:
		return ModeAuto, nil
	case ModeOff:
		return ModeOff, nil
	}
	return "", fmt.Errorf("unknown mode %q", raw)
}

// Status is the availability of one device as seen by the hub.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// DeviceCapabilities is derived from one dashboard fetch.
type DeviceCapabilities struct {
	FireplaceMode      bool `json:"fireplace_mode"`
	OutdoorTemperature bool `json:"outdoor_temperature"`
	HotWaterZone       bool `json:"hot_water_zone"`
	MultiSchedule      bool `json:"multi_schedule"`
}

// DeviceState is one climate zone projected into canonical form. Optional
// fields are nil when the appliance does not support them.
type DeviceState struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	IsOnline               bool     `json:"is_online"`
	HasError               bool     `json:"has_error"`
	Mode                   Mode     `json:"mode"`
	Temperature            float64  `json:"temperature"`
	TargetTemperature      float64  `json:"target_temperature"`
	WaterPressure          float64  `json:"water_pressure"`
	WaterPressureOK        bool     `json:"water_pressure_ok"`
	OutdoorTemperature     *float64 `json:"outdoor_temperature,omitempty"`
	WaterTemperature       *float64 `json:"water_temperature,omitempty"`
	TargetWaterTemperature *float64 `json:"target_water_temperature,omitempty"`
	FireplaceModeActive    *bool    `json:"fireplace_mode_active,omitempty"`
	HeatingProgramID       *int     `json:"heating_program_id,omitempty"`
}

// PressureDisplay converts vendor pressure (bar) to the display unit (mbar).
func PressureDisplay(bar float64) float64 {
	return bar * 1000
}
