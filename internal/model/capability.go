package model

// Capability slot names written to the state sink.
const (
	CapMeasureTemperature      = "measure_temperature"
	CapTargetTemperature       = "target_temperature"
	CapMeasurePressure         = "measure_pressure"
	CapAlarmWater              = "alarm_water"
	CapAlarmGeneric            = "alarm_generic"
	CapApplianceOnline         = "appliance_online"
	CapThermostatMode          = "thermostat_mode"
	CapMeasureTemperatureOut   = "measure_temperature_outside"
	CapMeasureTemperatureWater = "measure_temperature_water"
	CapTargetTemperatureWater  = "target_temperature_water"
	CapFireplaceMode           = "fireplace_mode"
	CapHeatingProgram          = "heating_program"
)

// Command names accepted by a device instance.
type Command string

const (
	CommandTargetTemperature Command = "target_temperature"
	CommandMode              Command = "mode"
	CommandFireplaceMode     Command = "fireplace_mode"
)

var baseSlots = []string{
	CapMeasureTemperature,
	CapTargetTemperature,
	CapMeasurePressure,
	CapAlarmWater,
	CapAlarmGeneric,
	CapApplianceOnline,
	CapThermostatMode,
}

// Slots lists the capability slots a device with caps should expose.
func Slots(caps DeviceCapabilities) []string {
	slots := append([]string(nil), baseSlots...)
	if caps.OutdoorTemperature {
		slots = append(slots, CapMeasureTemperatureOut)
	}
	if caps.HotWaterZone {
		slots = append(slots, CapMeasureTemperatureWater, CapTargetTemperatureWater)
	}
	if caps.FireplaceMode {
		slots = append(slots, CapFireplaceMode)
	}
	if caps.MultiSchedule {
		slots = append(slots, CapHeatingProgram)
	}
	return slots
}

// Commands lists the command handlers valid for caps.
func Commands(caps DeviceCapabilities) []Command {
	commands := []Command{CommandTargetTemperature, CommandMode}
	if caps.FireplaceMode {
		commands = append(commands, CommandFireplaceMode)
	}
	return commands
}

// Values flattens a device state into slot values. Optional fields are
// omitted when absent so previously written values are left alone.
func Values(state DeviceState) map[string]any {
	values := map[string]any{
		CapMeasureTemperature: state.Temperature,
		CapTargetTemperature:  state.TargetTemperature,
		CapMeasurePressure:    PressureDisplay(state.WaterPressure),
		CapAlarmWater:         !state.WaterPressureOK,
		CapAlarmGeneric:       state.HasError,
		CapApplianceOnline:    state.IsOnline,
		CapThermostatMode:     string(state.Mode),
	}
	if state.OutdoorTemperature != nil {
		values[CapMeasureTemperatureOut] = *state.OutdoorTemperature
	}
	if state.WaterTemperature != nil {
		values[CapMeasureTemperatureWater] = *state.WaterTemperature
	}
	if state.TargetWaterTemperature != nil {
		values[CapTargetTemperatureWater] = *state.TargetWaterTemperature
	}
	if state.FireplaceModeActive != nil {
		values[CapFireplaceMode] = *state.FireplaceModeActive
	}
	if state.HeatingProgramID != nil {
		values[CapHeatingProgram] = *state.HeatingProgramID
	}
	return values
}
