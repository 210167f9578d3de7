package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"obd-backend/internal/models"
)

// DatasetRows is the row count of every generated dataset
const DatasetRows = 50000

// Dataset is one generated CSV file
type Dataset struct {
	FileName string
	Start    time.Time
	End      time.Time
	Spec     InjectionSpec
}

// Datasets are the three fixed files produced by the generator CLI
var Datasets = []Dataset{
	{
		FileName: "clean_may_1-21.csv",
		Start:    date(2025, time.May, 1),
		End:      date(2025, time.May, 21),
		Spec:     InjectionSpec{Fraction: 0.0},
	},
	{
		FileName: "april_1-21_20pct.csv",
		Start:    date(2025, time.April, 1),
		End:      date(2025, time.April, 21),
		Spec: InjectionSpec{
			Fraction: 0.2,
			Faults:   []models.FaultLabel{models.FaultOverheating, models.FaultThrottleLag},
		},
	},
	{
		FileName: "march_1-21_50pct_allfaults.csv",
		Start:    date(2025, time.March, 1),
		End:      date(2025, time.March, 21),
		Spec: InjectionSpec{
			Fraction: 0.5,
			Faults: []models.FaultLabel{
				models.FaultOverheating,
				models.FaultThrottleLag,
				models.FaultLowVoltage,
				models.FaultVacuumLeak,
			},
		},
	},
}

// Build generates and labels the rows of a dataset
func (d Dataset) Build(rng *rand.Rand, n int) []models.LabeledRow {
	return Inject(rng, Generate(rng, d.Start, d.End, n), d.Spec)
}

// WriteFile writes rows under dir as the dataset's file, returning the path
func (d Dataset) WriteFile(dir string, rows []models.LabeledRow) (string, error) {
	path := filepath.Join(dir, d.FileName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCSV(f, rows); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}

// Writer persists labelled rows in one batch
type Writer interface {
	InsertTelemetry(ctx context.Context, rows []models.LabeledRow) error
}

// Load inserts rows into the telemetry store in batches of batchSize
func Load(ctx context.Context, w Writer, rows []models.LabeledRow, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := w.InsertTelemetry(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("failed to load rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
