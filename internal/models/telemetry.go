package models

import "time"

// FaultLabel is a named diagnostic category assigned to a telemetry row
type FaultLabel string

const (
	FaultOverheating    FaultLabel = "Overheating"
	FaultLowVoltage     FaultLabel = "Low Voltage"
	FaultThrottleLag    FaultLabel = "Throttle Lag"
	FaultVacuumLeak     FaultLabel = "Vacuum Leak"
	FaultFuelTrimDrift  FaultLabel = "Fuel Trim Drift"
	FaultRPMFluctuation FaultLabel = "RPM Fluctuation"
)

// FaultCatalog lists every known fault label
var FaultCatalog = []FaultLabel{
	FaultOverheating,
	FaultLowVoltage,
	FaultThrottleLag,
	FaultVacuumLeak,
	FaultFuelTrimDrift,
	FaultRPMFluctuation,
}

// Known reports whether the label belongs to the catalog
func (f FaultLabel) Known() bool {
	for _, known := range FaultCatalog {
		if f == known {
			return true
		}
	}
	return false
}

// Source tells whether a row was left untouched or had a fault injected
type Source string

const (
	SourceClean    Source = "clean"
	SourceInjected Source = "injected"
)

// TelemetryRow represents one OBD-II sample for a user/session
type TelemetryRow struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`

	EngineRunTime          float64 `json:"engine_run_time"`            // seconds
	EngineRPM              float64 `json:"engine_rpm"`                 // rev/min
	VehicleSpeed           float64 `json:"vehicle_speed"`              // km/h
	Throttle               float64 `json:"throttle"`                   // percent
	EngineLoad             float64 `json:"engine_load"`                // percent
	CoolantTemperature     float64 `json:"coolant_temperature"`        // Celsius
	LongTermFuelTrimBank1  float64 `json:"long_term_fuel_trim_bank_1"` // percent
	IntakeManifoldPressure float64 `json:"intake_manifold_pressure"`   // kPa
	ControlModuleVoltage   float64 `json:"control_module_voltage"`     // volts
	PedalPosition          float64 `json:"pedal_position"`             // percent
}

// Channel column names, shared by the store schema and the CSV exports
const (
	ColumnEngineRunTime          = "engine_run_time"
	ColumnEngineRPM              = "engine_rpm"
	ColumnVehicleSpeed           = "vehicle_speed"
	ColumnThrottle               = "throttle"
	ColumnEngineLoad             = "engine_load"
	ColumnCoolantTemperature     = "coolant_temperature"
	ColumnLongTermFuelTrimBank1  = "long_term_fuel_trim_bank_1"
	ColumnIntakeManifoldPressure = "intake_manifold_pressure"
	ColumnControlModuleVoltage   = "control_module_voltage"
	ColumnPedalPosition          = "pedal_position"
)

// ChannelColumns lists the sensor channels in storage order
var ChannelColumns = []string{
	ColumnEngineRunTime,
	ColumnEngineRPM,
	ColumnVehicleSpeed,
	ColumnThrottle,
	ColumnEngineLoad,
	ColumnCoolantTemperature,
	ColumnLongTermFuelTrimBank1,
	ColumnIntakeManifoldPressure,
	ColumnControlModuleVoltage,
	ColumnPedalPosition,
}

func (r *TelemetryRow) channel(column string) *float64 {
	switch column {
	case ColumnEngineRunTime:
		return &r.EngineRunTime
	case ColumnEngineRPM:
		return &r.EngineRPM
	case ColumnVehicleSpeed:
		return &r.VehicleSpeed
	case ColumnThrottle:
		return &r.Throttle
	case ColumnEngineLoad:
		return &r.EngineLoad
	case ColumnCoolantTemperature:
		return &r.CoolantTemperature
	case ColumnLongTermFuelTrimBank1:
		return &r.LongTermFuelTrimBank1
	case ColumnIntakeManifoldPressure:
		return &r.IntakeManifoldPressure
	case ColumnControlModuleVoltage:
		return &r.ControlModuleVoltage
	case ColumnPedalPosition:
		return &r.PedalPosition
	}
	return nil
}

// SetChannel stores v in the named channel, reporting false for unknown columns
func (r *TelemetryRow) SetChannel(column string, v float64) bool {
	p := r.channel(column)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Channel returns the value of the named channel, zero for unknown columns
func (r *TelemetryRow) Channel(column string) float64 {
	if p := r.channel(column); p != nil {
		return *p
	}
	return 0
}

// LabeledRow is a telemetry row after fault injection and detection
type LabeledRow struct {
	TelemetryRow

	InjectedFault *FaultLabel `json:"injected_fault_type"`
	IsSynthetic   bool        `json:"is_synthetic"`
	Source        Source      `json:"source"`
	DetectedFault *FaultLabel `json:"detected_fault"`
}

// FaultCount is one row of the counts-by-fault aggregation
type FaultCount struct {
	Fault FaultLabel `json:"detected_fault"`
	Count uint64     `json:"count"`
}

// FaultLastSeen is one row of the last-seen-by-fault aggregation
type FaultLastSeen struct {
	Fault    FaultLabel `json:"detected_fault"`
	LastSeen time.Time  `json:"last_seen"`
}

// FaultSpan is one row of the first/last-span-by-fault aggregation
type FaultSpan struct {
	Fault     FaultLabel `json:"detected_fault"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
}

// DiagnosticsEvent is published after a chat answer has been produced
type DiagnosticsEvent struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Response  string    `json:"response"`
}

// UploadRow is one reshaped row of an uploaded legacy CSV: the user, the
// normalised record date and the first 27 raw columns
type UploadRow struct {
	UserID    string
	Timestamp time.Time
	Fields    []string
}
