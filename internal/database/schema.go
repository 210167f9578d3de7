package database

import (
	"fmt"
	"strings"

	"obd-backend/internal/diagnostics"
	"obd-backend/internal/models"
)

// Tables names the store objects the backend reads and writes
type Tables struct {
	Telemetry string
	Legacy    string
	View      string
}

const telemetryTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		user_id String,
		timestamp DateTime,
%s
		injected_fault_type Nullable(String),
		is_synthetic UInt8,
		source LowCardinality(String)
	) ENGINE = MergeTree()
	ORDER BY (user_id, timestamp)
	PARTITION BY toYYYYMM(timestamp)
`

func channelColumnsSQL() string {
	var b strings.Builder
	for _, column := range models.ChannelColumns {
		fmt.Fprintf(&b, "\t\t%s Float64,\n", column)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// legacy uploads keep their 27 source columns verbatim
const legacyTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		user_id String,
		timestamp DateTime,
		fields Array(String)
	) ENGINE = MergeTree()
	ORDER BY (user_id, timestamp)
`

const detectedViewSQL = `
	CREATE VIEW IF NOT EXISTS %s AS
	SELECT *, %s AS detected_fault
	FROM %s
`

// Schema returns the DDL for every table and the detected-fault view, in
// creation order. The view's label column is rendered from the detector
// rules so the store and the in-process engine agree.
func Schema(t Tables, detector *diagnostics.Detector) []string {
	return []string{
		fmt.Sprintf(telemetryTableSQL, t.Telemetry, channelColumnsSQL()),
		fmt.Sprintf(legacyTableSQL, t.Legacy),
		fmt.Sprintf(detectedViewSQL, t.View, detector.Expression(), t.Telemetry),
	}
}
