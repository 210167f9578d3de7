package synthetic

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"obd-backend/internal/models"
)

// TimestampLayout is the timestamp format written to and read by the store
const TimestampLayout = "2006-01-02 15:04:05"

// DetectedFaultColumn holds the in-process label. The store derives its own in
// the detected-fault view, so a CSV load must skip it
// (input_format_skip_unknown_fields=1).
const DetectedFaultColumn = "detected_fault"

// Header returns the CSV column names for a labelled table. Every column but
// DetectedFaultColumn matches the telemetry table.
func Header() []string {
	header := []string{"user_id", "timestamp"}
	header = append(header, models.ChannelColumns...)
	return append(header, "injected_fault_type", "is_synthetic", "source", DetectedFaultColumn)
}

// WriteCSV writes rows with a header line
func WriteCSV(w io.Writer, rows []models.LabeledRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range rows {
		if err := cw.Write(record(&rows[i])); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func record(r *models.LabeledRow) []string {
	isSynthetic := "0"
	if r.IsSynthetic {
		isSynthetic = "1"
	}

	out := []string{r.UserID, r.Timestamp.UTC().Format(TimestampLayout)}
	for _, column := range models.ChannelColumns {
		out = append(out, formatFloat(r.Channel(column)))
	}
	return append(out,
		optionalLabel(r.InjectedFault),
		isSynthetic,
		string(r.Source),
		optionalLabel(r.DetectedFault),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optionalLabel(f *models.FaultLabel) string {
	if f == nil {
		return ""
	}
	return string(*f)
}
