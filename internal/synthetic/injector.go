package synthetic

import (
	"math"
	"math/rand"

	"obd-backend/internal/diagnostics"
	"obd-backend/internal/models"
)

// InjectionSpec describes how many rows receive a fault and which faults to
// spread across them
type InjectionSpec struct {
	Fraction float64             // 0.0-1.0 of the table
	Faults   []models.FaultLabel // distributed evenly, in order
}

type override func(r *models.TelemetryRow)

// overrides holds the deterministic channel values forced for each fault
var overrides = map[models.FaultLabel]override{
	models.FaultOverheating: func(r *models.TelemetryRow) {
		r.CoolantTemperature = 130
	},
	models.FaultThrottleLag: func(r *models.TelemetryRow) {
		r.PedalPosition = 60
		r.Throttle = 10
	},
	models.FaultLowVoltage: func(r *models.TelemetryRow) {
		r.ControlModuleVoltage = 9
	},
	models.FaultVacuumLeak: func(r *models.TelemetryRow) {
		r.IntakeManifoldPressure = 60
	},
}

// noOverride is used for faults without a signature: rows are labelled but
// their channel values are left as generated.
func noOverride(*models.TelemetryRow) {}

// InjectedCount returns floor(fraction * n), clamped to [0, n]
func InjectedCount(fraction float64, n int) int {
	k := int(math.Floor(fraction * float64(n)))
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}

// Inject copies rows, forces the fault signatures of spec onto a uniform
// sample of them and runs the detector over every output row.
// The input slice is never modified.
func Inject(rng *rand.Rand, rows []models.TelemetryRow, spec InjectionSpec) []models.LabeledRow {
	out := make([]models.LabeledRow, len(rows))
	for i := range rows {
		out[i] = models.LabeledRow{
			TelemetryRow: rows[i],
			Source:       models.SourceClean,
		}
	}

	k := InjectedCount(spec.Fraction, len(rows))
	if k > 0 && len(spec.Faults) > 0 {
		sample := rng.Perm(len(rows))[:k]
		groups := Partition(sample, len(spec.Faults))

		for g, fault := range spec.Faults {
			apply, ok := overrides[fault]
			if !ok {
				apply = noOverride
			}

			injected := fault
			for _, idx := range groups[g] {
				row := &out[idx]
				apply(&row.TelemetryRow)
				row.InjectedFault = &injected
				row.IsSynthetic = true
				row.Source = models.SourceInjected
			}
		}
	}

	for i := range out {
		out[i].DetectedFault = diagnostics.Detect(&out[i].TelemetryRow)
	}
	return out
}

// Partition splits idx into parts contiguous groups whose sizes differ by at
// most one; the first len(idx)%parts groups hold the extra element.
func Partition(idx []int, parts int) [][]int {
	if parts <= 0 {
		return nil
	}

	groups := make([][]int, parts)
	base, extra := len(idx)/parts, len(idx)%parts
	offset := 0
	for g := range groups {
		size := base
		if g < extra {
			size++
		}
		groups[g] = idx[offset : offset+size]
		offset += size
	}
	return groups
}
