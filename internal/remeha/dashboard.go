package remeha

import "github.com/micro-ha/remeha-home/addon/internal/model"

type dashboardResponse struct {
	Appliances []appliance `json:"appliances"`
}

type appliance struct {
	ApplianceID                   string                        `json:"applianceId"`
	ApplianceOnline               bool                          `json:"applianceOnline"`
	ErrorStatus                   string                        `json:"errorStatus"`
	ClimateZones                  []climateZone                 `json:"climateZones"`
	HotWaterZones                 []hotWaterZone                `json:"hotWaterZones"`
	WaterPressure                 float64                       `json:"waterPressure"`
	WaterPressureOK               bool                          `json:"waterPressureOK"`
	CapabilityOutdoorTemperature  bool                          `json:"capabilityOutdoorTemperature"`
	OutdoorTemperatureInformation outdoorTemperatureInformation `json:"outdoorTemperatureInformation"`
	CapabilityMultiSchedule       bool                          `json:"capabilityMultiSchedule"`
}

type climateZone struct {
	ClimateZoneID                         string  `json:"climateZoneId"`
	Name                                  string  `json:"name"`
	RoomTemperature                       float64 `json:"roomTemperature"`
	SetPoint                              float64 `json:"setPoint"`
	ZoneMode                              string  `json:"zoneMode"`
	CapabilityFirePlaceMode               bool    `json:"capabilityFirePlaceMode"`
	FirePlaceModeActive                   *bool   `json:"firePlaceModeActive"`
	ActiveHeatingClimateTimeProgramNumber *int    `json:"activeHeatingClimateTimeProgramNumber"`
	ActiveComfortDemand                   string  `json:"activeComfortDemand"`
}

type hotWaterZone struct {
	HotWaterZoneID string  `json:"hotWaterZoneId"`
	DHWTemperature float64 `json:"dhwTemperature"`
	TargetSetpoint float64 `json:"targetSetpoint"`
}

type outdoorTemperatureInformation struct {
	OutdoorTemperatureSource    string  `json:"outdoorTemperatureSource"`
	ApplianceOutdoorTemperature float64 `json:"applianceOutdoorTemperature"`
	IsDayTime                   bool    `json:"isDayTime"`
}

// primaryZone is the climate zone this integration treats as the device.
func (a appliance) primaryZone() (climateZone, bool) {
	if len(a.ClimateZones) == 0 {
		return climateZone{}, false
	}
	return a.ClimateZones[0], true
}

func (a appliance) capabilities() model.DeviceCapabilities {
	zone, _ := a.primaryZone()
	return model.DeviceCapabilities{
		FireplaceMode:      zone.CapabilityFirePlaceMode,
		OutdoorTemperature: a.CapabilityOutdoorTemperature,
		HotWaterZone:       len(a.HotWaterZones) > 0,
		MultiSchedule:      a.CapabilityMultiSchedule,
	}
}

func (a appliance) deviceState() (model.DeviceState, bool) {
	zone, ok := a.primaryZone()
	if !ok {
		return model.DeviceState{}, false
	}
	caps := a.capabilities()
	state := model.DeviceState{
		ID:                zone.ClimateZoneID,
		Name:              zone.Name,
		IsOnline:          a.ApplianceOnline,
		HasError:          mapErrorStatus(a.ErrorStatus),
		Mode:              mapZoneMode(zone.ZoneMode),
		Temperature:       zone.RoomTemperature,
		TargetTemperature: zone.SetPoint,
		WaterPressure:     a.WaterPressure,
		WaterPressureOK:   a.WaterPressureOK,
	}

	// Not every installation has an outdoor sensor.
	if caps.OutdoorTemperature {
		outdoor := a.OutdoorTemperatureInformation.ApplianceOutdoorTemperature
		state.OutdoorTemperature = &outdoor
	}
	if caps.FireplaceMode {
		active := zone.FirePlaceModeActive != nil && *zone.FirePlaceModeActive
		state.FireplaceModeActive = &active
	}
	// Hybrid heat pumps come without a hot water zone.
	if caps.HotWaterZone {
		water := a.HotWaterZones[0].DHWTemperature
		target := a.HotWaterZones[0].TargetSetpoint
		state.WaterTemperature = &water
		state.TargetWaterTemperature = &target
	}
	if caps.MultiSchedule && zone.ActiveHeatingClimateTimeProgramNumber != nil {
		program := *zone.ActiveHeatingClimateTimeProgramNumber
		state.HeatingProgramID = &program
	}
	return state, true
}

func mapZoneMode(mode string) model.Mode {
	switch mode {
	case "Manual":
		return model.ModeManual
	case "TemporaryOverride", "Scheduling":
		return model.ModeAuto
	case "FrostProtection":
		return model.ModeOff
	default:
		return model.ModeOff
	}
}

func mapErrorStatus(status string) bool {
	return status != "Running"
}
