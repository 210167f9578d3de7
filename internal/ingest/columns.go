package ingest

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"obd-backend/internal/models"
)

// ColumnMap locates each telemetry channel by its index in a legacy record
type ColumnMap map[string]int

// headerAliases maps normalised legacy header names to channel columns
var headerAliases = map[string]string{
	"engine_run_time": models.ColumnEngineRunTime,
	"engine_runtime":  models.ColumnEngineRunTime,
	"run_time":        models.ColumnEngineRunTime,

	"engine_rpm": models.ColumnEngineRPM,
	"rpm":        models.ColumnEngineRPM,

	"vehicle_speed": models.ColumnVehicleSpeed,
	"speed":         models.ColumnVehicleSpeed,

	"throttle":                   models.ColumnThrottle,
	"throttle_pos":               models.ColumnThrottle,
	"throttle_position":          models.ColumnThrottle,
	"absolute_throttle_position": models.ColumnThrottle,

	"engine_load":            models.ColumnEngineLoad,
	"calculated_engine_load": models.ColumnEngineLoad,

	"coolant_temperature":        models.ColumnCoolantTemperature,
	"coolant_temp":               models.ColumnCoolantTemperature,
	"engine_coolant_temp":        models.ColumnCoolantTemperature,
	"engine_coolant_temperature": models.ColumnCoolantTemperature,

	"long_term_fuel_trim_bank_1": models.ColumnLongTermFuelTrimBank1,
	"long_term_fuel_trim_bank1":  models.ColumnLongTermFuelTrimBank1,
	"ltft1":                      models.ColumnLongTermFuelTrimBank1,

	"intake_manifold_pressure":          models.ColumnIntakeManifoldPressure,
	"intake_manifold_absolute_pressure": models.ColumnIntakeManifoldPressure,
	"map":                               models.ColumnIntakeManifoldPressure,

	"control_module_voltage": models.ColumnControlModuleVoltage,
	"module_voltage":         models.ColumnControlModuleVoltage,
	"ecu_voltage":            models.ColumnControlModuleVoltage,

	"pedal_position":                      models.ColumnPedalPosition,
	"pedal_d":                             models.ColumnPedalPosition,
	"accelerator_pedal_position_d":        models.ColumnPedalPosition,
	"relative_accelerator_pedal_position": models.ColumnPedalPosition,
}

var (
	unitSuffix = regexp.MustCompile(`\([^)]*\)`)
	nonWord    = regexp.MustCompile(`[^a-z0-9]+`)
)

func normalizeHeader(h string) string {
	h = unitSuffix.ReplaceAllString(strings.ToLower(h), "")
	return strings.Trim(nonWord.ReplaceAllString(h, "_"), "_")
}

// MapColumns resolves every channel to a record index. Entries in columns
// win over header names; the date column is never a channel. The second
// result lists channels left without a source, in storage order.
func MapColumns(header []string, columns ColumnMap) (ColumnMap, []string) {
	mapping := make(ColumnMap, len(models.ChannelColumns))
	for column, idx := range columns {
		mapping[column] = idx
	}

	for idx, name := range header {
		if idx >= KeptColumns {
			break
		}
		column, ok := headerAliases[normalizeHeader(name)]
		if !ok {
			continue
		}
		if _, taken := mapping[column]; !taken {
			mapping[column] = idx
		}
	}

	var unmapped []string
	for _, column := range models.ChannelColumns {
		if _, ok := mapping[column]; !ok {
			unmapped = append(unmapped, column)
		}
	}
	return mapping, unmapped
}

// ParseColumnMap reads "channel=index" pairs separated by commas, e.g.
// "engine_rpm=12,coolant_temperature=8". An empty string yields no entries.
func ParseColumnMap(s string) (ColumnMap, error) {
	columns := ColumnMap{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		column, rawIdx, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid column mapping %q: want channel=index", pair)
		}
		column = strings.TrimSpace(column)
		if !slices.Contains(models.ChannelColumns, column) {
			return nil, fmt.Errorf("invalid column mapping %q: unknown channel %q", pair, column)
		}

		idx, err := strconv.Atoi(strings.TrimSpace(rawIdx))
		if err != nil || idx < 0 || idx >= KeptColumns {
			return nil, fmt.Errorf("invalid column mapping %q: index must be in [0, %d)", pair, KeptColumns)
		}
		columns[column] = idx
	}
	return columns, nil
}
