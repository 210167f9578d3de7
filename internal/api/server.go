package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"obd-backend/internal/database"
	"obd-backend/internal/ingest"
)

// Chatter answers a user's diagnostic question
type Chatter interface {
	Chat(ctx context.Context, userID, question string) (string, error)
}

// Uploader stores a legacy CSV upload
type Uploader interface {
	Upload(ctx context.Context, r io.Reader) (*ingest.Result, error)
	UserID() string
}

// Pinger reports store reachability for /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the API server
type Server struct {
	chat     Chatter
	upload   Uploader
	store    Pinger
	logger   *zap.Logger
	router   *mux.Router
	maxBytes int64
}

// Options carries the optional parts of the server
type Options struct {
	Store          Pinger // nil skips the store check
	MaxUploadBytes int64
}

// NewServer creates a new API server
func NewServer(chat Chatter, upload Uploader, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		chat:     chat,
		upload:   upload,
		store:    opts.Store,
		logger:   logger.Named("api"),
		router:   mux.NewRouter(),
		maxBytes: opts.MaxUploadBytes,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/chat", s.handleChat).Methods("POST")
	s.router.HandleFunc("/upload-csv", s.handleUploadCSV).Methods("POST")

	s.router.Use(s.loggingMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler wraps the router with CORS for the given origins. A "*" entry
// allows any origin; the request origin is echoed back since browsers reject
// a wildcard on credentialed responses.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	if slices.Contains(allowedOrigins, "*") {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = allowedOrigins
	}
	return cors.New(opts).Handler(s.router)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("store ping failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "Both 'message' and 'user_id' are required.")
		return
	}

	answer, err := s.chat.Chat(r.Context(), req.UserID, req.Message)
	if errors.Is(err, database.ErrInvalidUserID) {
		respondError(w, http.StatusBadRequest, "'user_id' must be a UUID.")
		return
	}
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]string{"response": "❌ Failed to generate response: " + err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"response": answer})
}

type uploadResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Records  int    `json:"records"`
	Inserted int    `json:"inserted"`
	Dropped  int    `json:"dropped"`

	// rows added to the telemetry table and the channels that kept the rest out
	Diagnosable int      `json:"diagnosable"`
	Unmapped    []string `json:"unmapped_channels,omitempty"`
}

func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	if s.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		respondError(w, http.StatusBadRequest, "Only CSV files are allowed.")
		return
	}

	res, err := s.upload.Upload(r.Context(), file)
	if err != nil {
		s.logger.Error("upload failed", zap.String("file", header.Filename), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Upload failed: "+err.Error())
		return
	}

	userID := s.upload.UserID()
	respondJSON(w, http.StatusOK, uploadResponse{
		Message:  fmt.Sprintf("✅ Uploaded %d records with user_id %s", res.Records, userID),
		UserID:   userID,
		Records:  res.Records,
		Inserted: len(res.Rows),
		Dropped:  res.Dropped,

		Diagnosable: len(res.Telemetry),
		Unmapped:    res.Unmapped,
	})
}
