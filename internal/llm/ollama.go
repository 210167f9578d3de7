package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"obd-backend/internal/metrics"
	"obd-backend/pkg/config"
)

const (
	// NoResponseText is returned when the service answers without a response field
	NoResponseText = "⚠️ No response from Ollama."
	errorPrefix    = "❌ Ollama error: "
)

// ErrNoResponse means the completion body had no "response" field
var ErrNoResponse = errors.New("no response field in completion")

// Generator produces a completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Error    string  `json:"error,omitempty"`
}

// OllamaClient calls the non-streaming /api/generate endpoint
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client whose every call is bounded by cfg.Timeout
func NewOllamaClient(cfg config.OllamaConfig) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate sends the prompt and returns the response text verbatim
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Response == nil {
		if out.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrNoResponse, out.Error)
		}
		return "", ErrNoResponse
	}
	return *out.Response, nil
}

// Responder turns completion outcomes into user-facing text. It never fails:
// errors come back as inline strings.
type Responder struct {
	gen    Generator
	logger *zap.Logger
}

func NewResponder(gen Generator, logger *zap.Logger) *Responder {
	return &Responder{gen: gen, logger: logger.Named("responder")}
}

// Respond returns the completion text, NoResponseText when the service gave
// no answer, or "❌ Ollama error: <err>" on any other failure
func (r *Responder) Respond(ctx context.Context, prompt string) string {
	start := time.Now()
	text, err := r.gen.Generate(ctx, prompt)

	switch {
	case errors.Is(err, ErrNoResponse):
		metrics.ObserveOllama(metrics.ResultError, time.Since(start))
		r.logger.Warn("completion without response field", zap.Error(err))
		return NoResponseText
	case err != nil:
		metrics.ObserveOllama(metrics.ResultError, time.Since(start))
		r.logger.Error("completion failed", zap.Error(err))
		return errorPrefix + err.Error()
	}

	metrics.ObserveOllama(metrics.ResultSuccess, time.Since(start))
	return text
}
