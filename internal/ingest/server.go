// Package ingest receives external sensor webhooks and turns them into
// engine activities. Payloads are HMAC-verified against a shared secret;
// rejected or unstorable payloads are appended to a dead-letter file so a
// misbehaving integration never loses data silently.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/service"
	"github.com/vigilops/vigil/internal/telemetry"
	"github.com/vigilops/vigil/internal/types"
)

const scopeName = "github.com/vigilops/vigil/ingest"

// maxBodyBytes caps webhook request bodies.
const maxBodyBytes = 1 << 20 // 1MB

// ActivityCreator is the slice of the service layer the ingest server needs.
type ActivityCreator interface {
	CreateActivity(ctx context.Context, input service.CreateActivityInput, actor types.ActorContext) (*types.Activity, error)
}

// Server handles HTTP requests from external sensor integrations.
type Server struct {
	activities ActivityCreator
	secret     []byte
	deadletter *DeadLetter
	logger     *zap.Logger
	mux        *http.ServeMux
	httpServer *http.Server

	received     metric.Int64Counter
	rejected     metric.Int64Counter
	deadlettered metric.Int64Counter
}

// ServerConfig holds configuration for the ingest server.
type ServerConfig struct {
	Activities ActivityCreator
	Secret     []byte      // HMAC secret for signature validation
	DeadLetter *DeadLetter // nil disables dead-lettering
	Logger     *zap.Logger
}

// NewServer creates a new ingest server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		activities: cfg.Activities,
		secret:     cfg.Secret,
		deadletter: cfg.DeadLetter,
		logger:     logger,
		mux:        http.NewServeMux(),
	}

	m := telemetry.Meter(scopeName)
	s.received, _ = m.Int64Counter("vigil.ingest.received",
		metric.WithDescription("Webhook payloads received"),
	)
	s.rejected, _ = m.Int64Counter("vigil.ingest.rejected",
		metric.WithDescription("Webhook payloads rejected"),
	)
	s.deadlettered, _ = m.Int64Counter("vigil.ingest.deadlettered",
		metric.WithDescription("Webhook payloads appended to the dead-letter file"),
	)

	// Register routes
	s.mux.HandleFunc("/api/ingest/ambient", s.handleAmbient)
	s.mux.HandleFunc("/health", s.handleHealth)

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Response is the JSON envelope returned by every ingest endpoint.
type Response struct {
	Success bool         `json:"success"`
	Data    *ActivityRef `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ActivityRef identifies the activity created from an accepted payload.
type ActivityRef struct {
	ActivityID string `json:"activity_id"`
}

// ingestActor is the service account every webhook-created activity is
// recorded under. The payload's own provenance lands on the activity's
// reporter fields, not here.
func ingestActor() types.ActorContext {
	return types.SystemActor("ingest", "ambient webhook intake")
}

// handleAmbient handles POST /api/ingest/ambient.
func (s *Server) handleAmbient(w http.ResponseWriter, r *http.Request) {
	// Set JSON content type for all responses
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	// Only allow POST
	if r.Method != http.MethodPost {
		s.reject(ctx, w, http.StatusMethodNotAllowed, "method")
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST")
		return
	}
	s.received.Add(ctx, 1)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.reject(ctx, w, http.StatusBadRequest, "body")
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	// The signature covers the raw body, so it is checked before parsing.
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		s.reject(ctx, w, http.StatusUnauthorized, "signature")
		s.writeError(w, http.StatusUnauthorized, "missing "+SignatureHeader)
		return
	}
	if !VerifySignature(s.secret, body, sig) {
		s.reject(ctx, w, http.StatusUnauthorized, "signature")
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload AmbientPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(ctx, w, http.StatusBadRequest, "json")
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if errs := payload.Validate(); len(errs) > 0 {
		msg := "validation errors: " + strings.Join(errs, "; ")
		s.reject(ctx, w, http.StatusBadRequest, "validation")
		s.deadLetter(ctx, body, msg)
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	act, err := s.activities.CreateActivity(ctx, payload.ActivityInput(), ingestActor())
	if err != nil {
		s.reject(ctx, w, http.StatusInternalServerError, "storage")
		s.deadLetter(ctx, body, err.Error())
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store activity: %v", err))
		return
	}

	s.logger.Info("ambient alert ingested",
		zap.String("alert_id", payload.AlertID),
		zap.String("external_type", payload.Type),
		zap.String("activity_id", act.ID),
	)

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    &ActivityRef{ActivityID: act.ID},
	})
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// reject counts and logs a refused payload.
func (s *Server) reject(ctx context.Context, w http.ResponseWriter, status int, reason string) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	s.logger.Warn("webhook rejected",
		zap.Int("status", status),
		zap.String("reason", reason),
	)
}

// deadLetter appends a refused payload to the dead-letter file.
func (s *Server) deadLetter(ctx context.Context, body []byte, cause string) {
	if s.deadletter == nil {
		return
	}
	if err := s.deadletter.Append(body, cause); err != nil {
		s.logger.Error("dead-letter append failed", zap.Error(err))
		return
	}
	s.deadlettered.Add(ctx, 1)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}
