package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"obd-backend/internal/database"
	"obd-backend/internal/metrics"
	"obd-backend/internal/models"
	"obd-backend/internal/prompt"
	"obd-backend/internal/timewindow"
)

// FaultStore runs the three aggregation queries over the detected-fault view
type FaultStore interface {
	FaultCounts(ctx context.Context, userID string, since time.Time) ([]models.FaultCount, error)
	FaultLastSeen(ctx context.Context, userID string) ([]models.FaultLastSeen, error)
	FaultSpans(ctx context.Context, userID string) ([]models.FaultSpan, error)
}

// Responder turns a prompt into answer text, never failing
type Responder interface {
	Respond(ctx context.Context, prompt string) string
}

// EventSink receives each answered question; nil disables publication
type EventSink interface {
	Enqueue(ev *models.DiagnosticsEvent) bool
}

// DiagnosticsService answers natural-language questions about a user's faults
type DiagnosticsService struct {
	store     FaultStore
	responder Responder
	events    EventSink
	logger    *zap.Logger

	now func() time.Time
}

func NewDiagnosticsService(store FaultStore, responder Responder, events EventSink, logger *zap.Logger) *DiagnosticsService {
	return &DiagnosticsService{
		store:     store,
		responder: responder,
		events:    events,
		logger:    logger.Named("diagnostics"),
		now:       time.Now,
	}
}

// Gather resolves the window for question and runs the three aggregation
// queries concurrently. A failed query is logged and yields an empty result.
func (s *DiagnosticsService) Gather(ctx context.Context, userID, question string, policy timewindow.Policy) (prompt.Input, error) {
	if err := database.ValidateUserID(userID); err != nil {
		return prompt.Input{}, err
	}

	in := prompt.Input{
		Question: question,
		Window:   timewindow.Resolve(question, s.now(), policy),
	}

	var g errgroup.Group

	g.Go(func() error {
		start := time.Now()
		counts, err := s.store.FaultCounts(ctx, userID, in.Window.FilterStart())
		if s.observe("counts", userID, start, err) {
			in.Counts = counts
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		last, err := s.store.FaultLastSeen(ctx, userID)
		if s.observe("last_seen", userID, start, err) {
			in.LastSeen = last
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		spans, err := s.store.FaultSpans(ctx, userID)
		if s.observe("spans", userID, start, err) {
			in.Spans = spans
		}
		return nil
	})

	_ = g.Wait()
	return in, nil
}

// observe records a query outcome and reports whether it succeeded
func (s *DiagnosticsService) observe(query, userID string, start time.Time, err error) bool {
	if err != nil {
		metrics.ObserveQuery(query, metrics.ResultError, time.Since(start))
		s.logger.Error("aggregation query failed",
			zap.String("query", query),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	metrics.ObserveQuery(query, metrics.ResultSuccess, time.Since(start))
	return true
}

// Chat answers a request-serving question with the keyword-gated prompt.
// Questions without a recognised time phrase cover all history.
func (s *DiagnosticsService) Chat(ctx context.Context, userID, question string) (string, error) {
	start := time.Now()

	in, err := s.Gather(ctx, userID, question, timewindow.EpochFloor)
	if err != nil {
		metrics.ObserveChat(metrics.ResultError, time.Since(start))
		return "", err
	}

	answer := strings.TrimSpace(s.responder.Respond(ctx, prompt.ComposeChat(in)))
	metrics.ObserveChat(metrics.ResultSuccess, time.Since(start))

	if s.events != nil {
		s.events.Enqueue(&models.DiagnosticsEvent{
			UserID:    userID,
			Timestamp: s.now().UTC(),
			Question:  question,
			Response:  answer,
		})
	}
	return answer, nil
}

// Report answers with the full summary prompt over a 14-day default window
func (s *DiagnosticsService) Report(ctx context.Context, userID, question string) (string, error) {
	in, err := s.Gather(ctx, userID, question, timewindow.RollingDefault)
	if err != nil {
		return "", err
	}
	return s.responder.Respond(ctx, prompt.ComposeReport(in)), nil
}
