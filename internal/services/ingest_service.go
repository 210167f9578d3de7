package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"obd-backend/internal/metrics"
	"obd-backend/internal/models"
	"obd-backend/pkg/config"
)

// TelemetryWriter persists telemetry rows in one batch
type TelemetryWriter interface {
	InsertTelemetry(ctx context.Context, rows []models.LabeledRow) error
}

const finalTimeout = 5 * time.Second

// IngestService batches live telemetry from MQTT into the store. Rows are
// stored as clean; fault labels are derived by the store's view.
type IngestService struct {
	store  TelemetryWriter
	logger *zap.Logger

	// Input channel from the MQTT subscriber
	TelemetryChan chan *models.TelemetryRow

	batchSize     int
	flushInterval time.Duration
}

func NewIngestService(store TelemetryWriter, cfg config.IngestConfig, logger *zap.Logger) *IngestService {
	return &IngestService{
		store:         store,
		logger:        logger.Named("ingest"),
		TelemetryChan: make(chan *models.TelemetryRow, cfg.QueueSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
}

// Run flushes when a batch fills or the interval elapses, and drains the
// pending batch on shutdown. Runs until ctx is cancelled or the channel closes.
func (s *IngestService) Run(ctx context.Context) {
	s.logger.Info("starting", zap.Int("batch_size", s.batchSize), zap.Duration("flush_interval", s.flushInterval))

	batch := make([]models.LabeledRow, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case row, ok := <-s.TelemetryChan:
			if !ok {
				s.flushFinal(batch)
				return
			}
			batch = append(batch, models.LabeledRow{TelemetryRow: *row, Source: models.SourceClean})
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			s.flushFinal(s.drain(batch))
			s.logger.Info("stopped")
			return
		}
	}
}

// drain appends rows already queued when shutdown began
func (s *IngestService) drain(batch []models.LabeledRow) []models.LabeledRow {
	for {
		select {
		case row, ok := <-s.TelemetryChan:
			if !ok {
				return batch
			}
			batch = append(batch, models.LabeledRow{TelemetryRow: *row, Source: models.SourceClean})
		default:
			return batch
		}
	}
}

// flushFinal writes what is left with a fresh context, the run context
// being already cancelled
func (s *IngestService) flushFinal(batch []models.LabeledRow) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalTimeout)
	defer cancel()
	s.flush(ctx, batch)
}

// flush writes one batch. A failed batch is dropped, not retried.
func (s *IngestService) flush(ctx context.Context, batch []models.LabeledRow) {
	if err := s.store.InsertTelemetry(ctx, batch); err != nil {
		s.logger.Error("batch insert failed, dropping batch", zap.Int("batch", len(batch)), zap.Error(err))
		metrics.IncIngestBatch(metrics.ResultError)
		metrics.AddIngestRows("dropped", len(batch))
		return
	}

	metrics.IncIngestBatch(metrics.ResultSuccess)
	metrics.AddIngestRows("stored", len(batch))
}
