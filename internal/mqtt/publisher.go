package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"obd-backend/internal/metrics"
	"obd-backend/internal/models"
)

// Publisher publishes diagnostics events queued by the chat path
type Publisher struct {
	client mqtt.Client
	logger *zap.Logger

	events chan *models.DiagnosticsEvent

	// Topic pattern, e.g. "vehicle/{user_id}/diagnostics"
	diagnosticsTopic string
}

// NewPublisher creates a publisher with a queue of the given size
func NewPublisher(client mqtt.Client, topic string, queueSize int, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:           client,
		logger:           logger.Named("publisher"),
		events:           make(chan *models.DiagnosticsEvent, queueSize),
		diagnosticsTopic: topic,
	}
}

// Enqueue queues an event without blocking; it reports false when the queue
// is full and the event was dropped
func (p *Publisher) Enqueue(ev *models.DiagnosticsEvent) bool {
	select {
	case p.events <- ev:
		return true
	default:
		metrics.IncPublish("dropped")
		p.logger.Warn("diagnostics queue full, dropping event", zap.String("user_id", ev.UserID))
		return false
	}
}

// Start publishes queued events until the context is cancelled
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("starting")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down")
			return

		case ev := <-p.events:
			if err := p.publish(ev); err != nil {
				metrics.IncPublish(metrics.ResultError)
				p.logger.Error("publish failed", zap.Error(err))
				continue
			}
			metrics.IncPublish(metrics.ResultSuccess)
		}
	}
}

func (p *Publisher) publish(ev *models.DiagnosticsEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics event: %w", err)
	}

	topic := formatTopic(p.diagnosticsTopic, ev.UserID)

	token := p.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish diagnostics event: %w", token.Error())
	}

	p.logger.Debug("published diagnostics", zap.String("topic", topic))
	return nil
}

// formatTopic replaces the {user_id} placeholder
func formatTopic(pattern, userID string) string {
	return strings.ReplaceAll(pattern, "{user_id}", userID)
}
