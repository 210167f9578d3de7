// Package ingest normalises uploaded legacy OBD exports into store rows.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"obd-backend/internal/models"
)

const (
	// LegacyColumns is the exact column count an upload row must have
	LegacyColumns = 28
	// KeptColumns are copied verbatim after user id and timestamp
	KeptColumns = LegacyColumns - 1

	TimestampLayout = "2006-01-02 00:00:00"
)

// FallbackDate replaces dates that match no accepted layout
var FallbackDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order on the last column; Go's single-digit
// layouts also accept zero-padded values
var dateLayouts = []string{"2006-1-2", "1/2/2006"}

// Result is the outcome of reshaping one upload
type Result struct {
	Rows          []models.UploadRow
	Records       int // data rows read, header excluded
	Dropped       int // rows without exactly LegacyColumns fields
	DateFallbacks int // rows stamped with FallbackDate

	// Telemetry holds the rows whose channels could all be read. It stays
	// empty when Unmapped is not.
	Telemetry []models.TelemetryRow
	Unmapped  []string // channels with no source column
	Unparsed  int      // kept rows with a non-numeric channel value
}

// ParseDate reads a legacy date column, reporting false when it fell back
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return FallbackDate, false
}

// Reshape reads a legacy CSV (first line is a header) and returns one row per
// valid record, stamped with userID. Channels are located through columns
// first, then by header name.
func Reshape(r io.Reader, userID string, columns ColumnMap) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(strings.ReplaceAll(string(raw), "\r", "")))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	res := &Result{}

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	mapping, unmapped := MapColumns(header, columns)
	res.Unmapped = unmapped

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse upload: %w", err)
		}
		res.Records++

		if len(record) != LegacyColumns {
			res.Dropped++
			continue
		}

		ts, ok := ParseDate(record[LegacyColumns-1])
		if !ok {
			res.DateFallbacks++
		}

		fields := make([]string, KeptColumns)
		copy(fields, record[:KeptColumns])

		res.Rows = append(res.Rows, models.UploadRow{
			UserID:    userID,
			Timestamp: ts,
			Fields:    fields,
		})

		if len(unmapped) > 0 {
			continue
		}
		row, ok := telemetryRow(record, mapping, userID, ts)
		if !ok {
			res.Unparsed++
			continue
		}
		res.Telemetry = append(res.Telemetry, row)
	}

	return res, nil
}

func telemetryRow(record []string, mapping ColumnMap, userID string, ts time.Time) (models.TelemetryRow, bool) {
	row := models.TelemetryRow{UserID: userID, Timestamp: ts}
	for column, idx := range mapping {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
		if err != nil {
			return row, false
		}
		row.SetChannel(column, v)
	}
	return row, true
}

// WriteCSV writes rows as [user_id, timestamp, fields...] without a header,
// the layout the store's CSV insert format expects
func WriteCSV(w io.Writer, rows []models.UploadRow) error {
	cw := csv.NewWriter(w)
	for i := range rows {
		record := append([]string{rows[i].UserID, rows[i].Timestamp.Format(TimestampLayout)}, rows[i].Fields...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
