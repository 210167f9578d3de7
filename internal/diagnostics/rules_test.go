package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-backend/internal/models"
)

// healthyRow is inside every nominal channel range and triggers nothing
func healthyRow() models.TelemetryRow {
	return models.TelemetryRow{
		EngineRPM:              2500,
		Throttle:               40,
		CoolantTemperature:     90,
		LongTermFuelTrimBank1:  2,
		IntakeManifoldPressure: 35,
		ControlModuleVoltage:   13.5,
		PedalPosition:          30,
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *models.TelemetryRow)
		want   *models.FaultLabel
	}{
		{
			name:   "healthy row",
			modify: func(r *models.TelemetryRow) {},
			want:   nil,
		},
		{
			name:   "overheating",
			modify: func(r *models.TelemetryRow) { r.CoolantTemperature = 130 },
			want:   label(models.FaultOverheating),
		},
		{
			name:   "coolant exactly at threshold",
			modify: func(r *models.TelemetryRow) { r.CoolantTemperature = 120 },
			want:   nil,
		},
		{
			name:   "low voltage",
			modify: func(r *models.TelemetryRow) { r.ControlModuleVoltage = 9 },
			want:   label(models.FaultLowVoltage),
		},
		{
			name: "throttle lag",
			modify: func(r *models.TelemetryRow) {
				r.PedalPosition = 60
				r.Throttle = 10
			},
			want: label(models.FaultThrottleLag),
		},
		{
			name:   "pedal pressed but throttle open",
			modify: func(r *models.TelemetryRow) { r.PedalPosition = 60 },
			want:   nil,
		},
		{
			name: "vacuum leak",
			modify: func(r *models.TelemetryRow) {
				r.IntakeManifoldPressure = 60
				r.LongTermFuelTrimBank1 = 25
			},
			want: label(models.FaultVacuumLeak),
		},
		{
			name:   "high manifold pressure alone is not a leak",
			modify: func(r *models.TelemetryRow) { r.IntakeManifoldPressure = 60 },
			want:   nil,
		},
		{
			name: "overheating wins over low voltage",
			modify: func(r *models.TelemetryRow) {
				r.CoolantTemperature = 130
				r.ControlModuleVoltage = 9
			},
			want: label(models.FaultOverheating),
		},
		{
			name: "low voltage wins over throttle lag and vacuum leak",
			modify: func(r *models.TelemetryRow) {
				r.ControlModuleVoltage = 9
				r.PedalPosition = 60
				r.Throttle = 10
				r.IntakeManifoldPressure = 60
				r.LongTermFuelTrimBank1 = 25
			},
			want: label(models.FaultLowVoltage),
		},
		{
			name: "throttle lag wins over vacuum leak",
			modify: func(r *models.TelemetryRow) {
				r.PedalPosition = 60
				r.Throttle = 10
				r.IntakeManifoldPressure = 60
				r.LongTermFuelTrimBank1 = 25
			},
			want: label(models.FaultThrottleLag),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := healthyRow()
			tt.modify(&row)

			got := Detect(&row)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	row := healthyRow()
	row.CoolantTemperature = 125
	first := Detect(&row)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect(&row))
	}
}

func TestDetectorCustomRules(t *testing.T) {
	d := NewDetector([]Rule{{
		Label: models.FaultRPMFluctuation,
		Match: func(r *models.TelemetryRow) bool { return r.EngineRPM > 5000 },
	}})

	row := healthyRow()
	assert.Nil(t, d.Detect(&row))

	row.EngineRPM = 5500
	got := d.Detect(&row)
	require.NotNil(t, got)
	assert.Equal(t, models.FaultRPMFluctuation, *got)
}

func TestExpression(t *testing.T) {
	expr := NewDetector(nil).Expression()

	assert.Equal(t,
		"multiIf(coolant_temperature > 120, 'Overheating', "+
			"control_module_voltage < 11, 'Low Voltage', "+
			"pedal_position > 50 AND throttle < 15, 'Throttle Lag', "+
			"intake_manifold_pressure > 55 AND long_term_fuel_trim_bank_1 > 20, 'Vacuum Leak', NULL)",
		expr)
}

func label(f models.FaultLabel) *models.FaultLabel {
	return &f
}
