package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"deploypipe/internal/broker"
	"deploypipe/internal/event"
	"deploypipe/internal/history"
	"deploypipe/internal/security"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	// RecentResultsLimit caps the history returned by the status endpoint.
	RecentResultsLimit = 10
)

// HandleWebhook receives a GitHub webhook delivery: verify the signature
// over the raw bytes, normalize, publish. Re-delivering the same body
// publishes again; deduplication belongs to result consumers.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	githubEvent := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Expected application/json"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("failed to read request body", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	// Signature over the raw unparsed body, before anything interprets it.
	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, s.Secret) {
		s.Logger.Warn("invalid webhook signature", "delivery_id", deliveryID)
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	if !json.Valid(body) {
		s.Logger.Error("invalid JSON payload", "delivery_id", deliveryID)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	s.Logger.Info("received webhook", "event", githubEvent, "delivery_id", deliveryID)

	ev, disposition := event.Normalize(githubEvent, body, deliveryID)
	switch disposition.Status {
	case event.StatusPong:
		s.respondJSON(w, http.StatusOK, map[string]string{
			"status":  "pong",
			"message": disposition.Reason,
		})
		return
	case event.StatusIgnored:
		s.Logger.Info("ignoring webhook", "event", githubEvent, "reason", disposition.Reason)
		s.respondJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": disposition.Reason,
		})
		return
	}

	if err := s.publisher().Publish(r.Context(), ev.RepoName, ev); err != nil {
		s.Logger.Error("failed to publish deployment event", "error", err, "repo", ev.RepoName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to queue deployment"})
		return
	}

	s.Logger.Info("queued deployment event",
		"repo", ev.RepoFullName, "branch", ev.Branch, "commit", event.ShortCommit(ev.Commit))

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "queued",
		"repo":   ev.RepoName,
		"branch": ev.Branch,
		"commit": event.ShortCommit(ev.Commit),
	})
}

// HandleRoot reports basic service information.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "deploypipe webhook receiver",
		"status":  "operational",
		"topic":   s.Broker.Topic,
	})
}

// HandleHealth checks broker connectivity with a bounded dial.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	status := "healthy"
	brokerStatus := "connected"
	code := http.StatusOK
	if s.TestMode {
		brokerStatus = "skipped"
	} else if err := s.brokerPing(ctx); err != nil {
		s.Logger.Error("broker health check failed", "error", err)
		status = "degraded"
		brokerStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	s.respondJSON(w, code, map[string]any{
		"status":    status,
		"broker":    brokerStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleStatus returns recent deployment results for one repository.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "repoName")

	if err := security.ValidateRepoName(repoName); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid repository name"})
		return
	}

	if _, ok := s.Registry.Lookup(repoName); !ok {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown repository"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not configured"})
		return
	}

	latest, err := s.History.Latest(r.Context(), repoName)
	if err != nil && err != history.ErrNotFound {
		s.Logger.Error("failed to load latest result", "error", err, "repo", repoName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	recent, err := s.History.Recent(r.Context(), repoName, RecentResultsLimit)
	if err != nil {
		s.Logger.Error("failed to load recent results", "error", err, "repo", repoName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"repo":           repoName,
		"latest_result":  latest,
		"recent_results": recent,
	})
}

func (s *Server) brokerPing(ctx context.Context) error {
	return broker.Ping(ctx, s.Broker)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("failed to encode JSON response", "error", err)
	}
}
