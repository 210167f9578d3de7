package services

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"obd-backend/internal/ingest"
	"obd-backend/internal/metrics"
	"obd-backend/internal/models"
)

// UploadWriter persists reshaped legacy rows and the telemetry read from them
type UploadWriter interface {
	InsertUploadRows(ctx context.Context, rows []models.UploadRow) error
	TelemetryWriter
}

// UploadService reshapes legacy CSV uploads and stores them for one user.
// The raw fields go to the legacy table; rows whose channels resolve also go
// to the telemetry table so the detected-fault view covers them.
type UploadService struct {
	store   UploadWriter
	userID  string
	columns ingest.ColumnMap
	logger  *zap.Logger
}

func NewUploadService(store UploadWriter, userID string, columns ingest.ColumnMap, logger *zap.Logger) *UploadService {
	return &UploadService{
		store:   store,
		userID:  userID,
		columns: columns,
		logger:  logger.Named("upload"),
	}
}

// UserID is the identifier every uploaded row is filed under
func (s *UploadService) UserID() string {
	return s.userID
}

// Upload reshapes r and inserts the surviving rows. Dropped rows and date
// fallbacks are counted, never reported individually.
func (s *UploadService) Upload(ctx context.Context, r io.Reader) (*ingest.Result, error) {
	res, err := ingest.Reshape(r, s.userID, s.columns)
	if err != nil {
		return nil, err
	}

	metrics.AddCSVRows("kept", len(res.Rows))
	metrics.AddCSVRows("dropped", res.Dropped)
	metrics.AddCSVRows("date_fallback", res.DateFallbacks)
	metrics.AddCSVRows("telemetry", len(res.Telemetry))
	metrics.AddCSVRows("unparsed", res.Unparsed)

	if err := s.store.InsertUploadRows(ctx, res.Rows); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if len(res.Unmapped) > 0 && len(res.Rows) > 0 {
		s.logger.Warn("upload not diagnosable, channels without a source column",
			zap.Strings("unmapped", res.Unmapped))
	}

	if len(res.Telemetry) > 0 {
		rows := make([]models.LabeledRow, len(res.Telemetry))
		for i := range res.Telemetry {
			rows[i] = models.LabeledRow{TelemetryRow: res.Telemetry[i], Source: models.SourceClean}
		}
		if err := s.store.InsertTelemetry(ctx, rows); err != nil {
			return nil, fmt.Errorf("failed to store upload telemetry: %w", err)
		}
	}

	s.logger.Info("upload stored",
		zap.String("user_id", s.userID),
		zap.Int("records", res.Records),
		zap.Int("inserted", len(res.Rows)),
		zap.Int("telemetry", len(res.Telemetry)),
		zap.Int("dropped", res.Dropped),
		zap.Int("date_fallbacks", res.DateFallbacks),
	)
	return res, nil
}
