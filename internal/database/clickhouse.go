package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"obd-backend/internal/diagnostics"
	"obd-backend/internal/models"
	"obd-backend/pkg/config"
)

// ErrInvalidUserID is returned before any query when the user id is not a UUID
var ErrInvalidUserID = errors.New("invalid user id")

type ClickHouseDB struct {
	conn   driver.Conn
	tables Tables
	logger *zap.Logger
}

// NewClickHouseDB opens an HTTP connection to ClickHouse and, when
// configured, creates the schema
func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr:     []string{cfg.Addr},
		Protocol: clickhouse.HTTP,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("connected to ClickHouse", zap.String("addr", cfg.Addr))

	db := &ClickHouseDB{
		conn: conn,
		tables: Tables{
			Telemetry: cfg.TelemetryTable,
			Legacy:    cfg.LegacyTable,
			View:      cfg.View,
		},
		logger: logger,
	}

	if cfg.InitSchema {
		if err := db.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return db, nil
}

// InitSchema creates the tables and the detected-fault view if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, stmt := range Schema(db.tables, diagnostics.NewDetector(nil)) {
		if err := db.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema object: %w", err)
		}
	}

	db.logger.Info("database schema initialized")
	return nil
}

// Ping checks the connection is alive
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// ValidateUserID rejects identifiers that are not UUIDs in the canonical
// dashed form the store keeps. uuid.Parse also accepts braced, urn and
// undashed forms, which would never match a stored id.
func ValidateUserID(userID string) error {
	if len(userID) != canonicalUUIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}

const canonicalUUIDLen = 36

func countsQuery(view string) string {
	return fmt.Sprintf(`
		SELECT assumeNotNull(detected_fault) AS fault, count() AS count
		FROM %s
		WHERE user_id = ? AND detected_fault IS NOT NULL AND timestamp >= ?
		GROUP BY fault
		ORDER BY count DESC
	`, view)
}

func lastSeenQuery(view string) string {
	return fmt.Sprintf(`
		SELECT assumeNotNull(detected_fault) AS fault, max(timestamp) AS last_seen
		FROM %s
		WHERE user_id = ? AND detected_fault IS NOT NULL
		GROUP BY fault
	`, view)
}

func spansQuery(view string) string {
	return fmt.Sprintf(`
		SELECT assumeNotNull(detected_fault) AS fault,
		       min(timestamp) AS first_seen,
		       max(timestamp) AS last_seen
		FROM %s
		WHERE user_id = ? AND detected_fault IS NOT NULL
		GROUP BY fault
	`, view)
}

// FaultCounts returns detected faults since the given start, most frequent first
func (db *ClickHouseDB) FaultCounts(ctx context.Context, userID string, since time.Time) ([]models.FaultCount, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(ctx, countsQuery(db.tables.View), userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query fault counts: %w", err)
	}
	defer rows.Close()

	var result []models.FaultCount
	for rows.Next() {
		var (
			fault string
			count uint64
		)
		if err := rows.Scan(&fault, &count); err != nil {
			return nil, fmt.Errorf("failed to scan fault count: %w", err)
		}
		result = append(result, models.FaultCount{Fault: models.FaultLabel(fault), Count: count})
	}
	return result, rows.Err()
}

// FaultLastSeen returns the latest timestamp of each fault over all history
func (db *ClickHouseDB) FaultLastSeen(ctx context.Context, userID string) ([]models.FaultLastSeen, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(ctx, lastSeenQuery(db.tables.View), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query last seen faults: %w", err)
	}
	defer rows.Close()

	var result []models.FaultLastSeen
	for rows.Next() {
		var (
			fault    string
			lastSeen time.Time
		)
		if err := rows.Scan(&fault, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan last seen fault: %w", err)
		}
		result = append(result, models.FaultLastSeen{Fault: models.FaultLabel(fault), LastSeen: lastSeen})
	}
	return result, rows.Err()
}

// FaultSpans returns the first and last timestamp of each fault over all history
func (db *ClickHouseDB) FaultSpans(ctx context.Context, userID string) ([]models.FaultSpan, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(ctx, spansQuery(db.tables.View), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fault spans: %w", err)
	}
	defer rows.Close()

	var result []models.FaultSpan
	for rows.Next() {
		var (
			fault               string
			firstSeen, lastSeen time.Time
		)
		if err := rows.Scan(&fault, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan fault span: %w", err)
		}
		result = append(result, models.FaultSpan{
			Fault:     models.FaultLabel(fault),
			FirstSeen: firstSeen,
			LastSeen:  lastSeen,
		})
	}
	return result, rows.Err()
}

// InsertTelemetry writes live or generated rows in a single batch
func (db *ClickHouseDB) InsertTelemetry(ctx context.Context, rows []models.LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO "+db.tables.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to prepare telemetry batch: %w", err)
	}

	for i := range rows {
		r := &rows[i]

		var injected *string
		if r.InjectedFault != nil {
			s := string(*r.InjectedFault)
			injected = &s
		}
		var synthetic uint8
		if r.IsSynthetic {
			synthetic = 1
		}
		source := r.Source
		if source == "" {
			source = models.SourceClean
		}

		args := make([]any, 0, len(models.ChannelColumns)+5)
		args = append(args, r.UserID, r.Timestamp)
		for _, column := range models.ChannelColumns {
			args = append(args, r.Channel(column))
		}
		args = append(args, injected, synthetic, string(source))

		if err := batch.Append(args...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append telemetry row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert telemetry batch: %w", err)
	}
	return nil
}

// InsertUploadRows writes reshaped legacy CSV rows in a single batch
func (db *ClickHouseDB) InsertUploadRows(ctx context.Context, rows []models.UploadRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO "+db.tables.Legacy)
	if err != nil {
		return fmt.Errorf("failed to prepare upload batch: %w", err)
	}

	for i := range rows {
		if err := batch.Append(rows[i].UserID, rows[i].Timestamp, rows[i].Fields); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append upload row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert upload batch: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
