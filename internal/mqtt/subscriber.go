package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"obd-backend/internal/metrics"
	"obd-backend/internal/models"
)

// enqueueTimeout bounds how long a handler waits on a full channel
const enqueueTimeout = time.Second

// Subscriber decodes vehicle telemetry messages and writes them to a channel
type Subscriber struct {
	client mqtt.Client
	logger *zap.Logger

	// Output channel (written by subscriber, read by the ingest service)
	TelemetryChan chan<- *models.TelemetryRow

	// Topic pattern, e.g. "vehicle/+/obd"
	telemetryTopic string

	now func() time.Time
}

// NewSubscriber creates a telemetry subscriber writing to out
func NewSubscriber(client mqtt.Client, topic string, out chan<- *models.TelemetryRow, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		client:         client,
		logger:         logger.Named("subscriber"),
		TelemetryChan:  out,
		telemetryTopic: topic,
		now:            time.Now,
	}
}

// Subscribe subscribes to the telemetry topic
func (s *Subscriber) Subscribe() error {
	token := s.client.Subscribe(s.telemetryTopic, 1, s.handleTelemetry)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", token.Error())
	}
	s.logger.Info("subscribed", zap.String("topic", s.telemetryTopic))
	return nil
}

// handleTelemetry parses a JSON row. The user id comes from the payload or,
// when absent, from the topic; a missing timestamp is stamped server-side.
func (s *Subscriber) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	metrics.AddIngestRows("received", 1)

	var row models.TelemetryRow
	if err := json.Unmarshal(msg.Payload(), &row); err != nil {
		metrics.AddIngestRows("invalid", 1)
		s.logger.Warn("invalid telemetry payload", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	if row.UserID == "" {
		row.UserID = extractUserID(msg.Topic())
	}
	if row.UserID == "" {
		metrics.AddIngestRows("invalid", 1)
		s.logger.Warn("could not extract user id", zap.String("topic", msg.Topic()))
		return
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = s.now().UTC().Truncate(time.Second)
	}

	select {
	case s.TelemetryChan <- &row:
	case <-time.After(enqueueTimeout):
		metrics.AddIngestRows("queue_full", 1)
		s.logger.Warn("telemetry channel full, dropping message", zap.String("user_id", row.UserID))
	}
}

// extractUserID returns the second topic level
// Example: "vehicle/6f1c.../obd" -> "6f1c..."
func extractUserID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
