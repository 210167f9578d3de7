// Package synthetic produces labelled OBD-II telemetry for testing the fault
// detector and the diagnostics assistant.
package synthetic

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"obd-backend/internal/models"
)

// ChannelRange is the uniform sampling range of one sensor channel
type ChannelRange struct {
	Column string
	Min    float64
	Max    float64
}

// Channels holds the per-channel sampling ranges in output column order
var Channels = []ChannelRange{
	{models.ColumnEngineRunTime, 0, 3600},
	{models.ColumnEngineRPM, 0, 6000},
	{models.ColumnVehicleSpeed, 0, 200},
	{models.ColumnThrottle, 0, 100},
	{models.ColumnEngineLoad, 0, 100},
	{models.ColumnCoolantTemperature, 70, 100},
	{models.ColumnLongTermFuelTrimBank1, -10, 10},
	{models.ColumnIntakeManifoldPressure, 20, 50},
	{models.ColumnControlModuleVoltage, 11, 15},
	{models.ColumnPedalPosition, 0, 100},
}

// Generate creates n rows with timestamps drawn uniformly from the closed
// interval [start, end] at second precision and every channel drawn
// uniformly from its range. Each row gets a fresh identifier.
func Generate(rng *rand.Rand, start, end time.Time, n int) []models.TelemetryRow {
	if n <= 0 {
		return []models.TelemetryRow{}
	}

	lo, hi := start.Unix(), end.Unix()
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo

	rows := make([]models.TelemetryRow, n)
	for i := range rows {
		row := &rows[i]
		row.UserID = uuid.NewString()
		row.Timestamp = time.Unix(lo+rng.Int63n(span+1), 0).UTC()
		for _, ch := range Channels {
			row.SetChannel(ch.Column, ch.Min+(ch.Max-ch.Min)*rng.Float64())
		}
	}
	return rows
}
