package diagnostics

import (
	"fmt"
	"strings"

	"obd-backend/internal/models"
)

// Rule maps a telemetry condition to a fault label.
// Condition is the same predicate written as a ClickHouse expression over the
// telemetry table columns, used to render the detected-fault view.
type Rule struct {
	Label     models.FaultLabel
	Match     func(r *models.TelemetryRow) bool
	Condition string
}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{
		Label: models.FaultOverheating,
		Match: func(r *models.TelemetryRow) bool {
			return r.CoolantTemperature > 120
		},
		Condition: "coolant_temperature > 120",
	},
	{
		Label: models.FaultLowVoltage,
		Match: func(r *models.TelemetryRow) bool {
			return r.ControlModuleVoltage < 11
		},
		Condition: "control_module_voltage < 11",
	},
	{
		Label: models.FaultThrottleLag,
		Match: func(r *models.TelemetryRow) bool {
			return r.PedalPosition > 50 && r.Throttle < 15
		},
		Condition: "pedal_position > 50 AND throttle < 15",
	},
	{
		Label: models.FaultVacuumLeak,
		Match: func(r *models.TelemetryRow) bool {
			return r.IntakeManifoldPressure > 55 && r.LongTermFuelTrimBank1 > 20
		},
		Condition: "intake_manifold_pressure > 55 AND long_term_fuel_trim_bank_1 > 20",
	},
}

// Detector applies an ordered rule list to telemetry rows
type Detector struct {
	rules []Rule
}

// NewDetector creates a detector over the given rules (DefaultRules when nil)
func NewDetector(rules []Rule) *Detector {
	if rules == nil {
		rules = DefaultRules
	}
	return &Detector{rules: rules}
}

// Detect returns the label of the first matching rule, or nil
func (d *Detector) Detect(r *models.TelemetryRow) *models.FaultLabel {
	for _, rule := range d.rules {
		if rule.Match(r) {
			label := rule.Label
			return &label
		}
	}
	return nil
}

// Detect runs the default rule table
func Detect(r *models.TelemetryRow) *models.FaultLabel {
	return defaultDetector.Detect(r)
}

var defaultDetector = NewDetector(DefaultRules)

// Expression renders the rules as a single ClickHouse multiIf returning a
// Nullable(String) label, NULL when no rule matches.
func (d *Detector) Expression() string {
	var b strings.Builder
	b.WriteString("multiIf(")
	for _, rule := range d.rules {
		fmt.Fprintf(&b, "%s, '%s', ", rule.Condition, rule.Label)
	}
	b.WriteString("NULL)")
	return b.String()
}
