package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"deploypipe/internal/broker"
	"deploypipe/internal/history"
	"deploypipe/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// RequestTimeout covers the handler including the bounded broker
	// publish wait.
	RequestTimeout = 30 * time.Second

	// WebhookRateLimit is requests per minute per IP on the webhook
	// endpoint.
	WebhookRateLimit = 30

	// HealthCheckTimeout bounds the broker dial on /health.
	HealthCheckTimeout = 5 * time.Second
)

// Server is the webhook ingress: it authenticates deliveries, normalizes
// them into deployment events, and publishes to the input topic.
type Server struct {
	Registry *registry.Registry
	History  *history.History // nil when no history db is configured
	Secret   string
	Broker   broker.Config
	Logger   *slog.Logger
	TestMode bool

	// The producer connection is created at most once, on first
	// publish, guarded for concurrent first use.
	mu          sync.Mutex
	producer    broker.Publisher
	newProducer func() broker.Publisher
}

// NewServer creates a server whose producer is built lazily by factory.
// Tests inject an in-memory publisher through the factory.
func NewServer(reg *registry.Registry, hist *history.History, secret string, cfg broker.Config, factory func() broker.Publisher, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry:    reg,
		History:     hist,
		Secret:      secret,
		Broker:      cfg,
		Logger:      logger,
		TestMode:    testMode,
		newProducer: factory,
	}
}

// publisher returns the shared producer, creating it on first use.
func (s *Server) publisher() broker.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.producer == nil {
		s.Logger.Info("connecting producer", "brokers", s.Broker.Brokers, "topic", s.Broker.Topic)
		s.producer = s.newProducer()
	}
	return s.producer
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	r.Get("/", s.HandleRoot)
	r.Get("/health", s.HandleHealth)
	r.Get("/status/{repoName}", s.HandleStatus)

	if s.TestMode {
		r.Post("/github", s.HandleWebhook)
	} else {
		r.With(NewRateLimitMiddleware(WebhookRateLimit, s.Logger)).Post("/github", s.HandleWebhook)
	}

	return r
}

// Start runs the HTTP server until ctx is canceled, then drains in-flight
// requests and closes the producer connection.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("starting webhook receiver", "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("http shutdown failed", "error", err)
	}
	return s.Close()
}

// Close releases the producer connection if one was created.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.producer == nil {
		return nil
	}
	err := s.producer.Close()
	s.producer = nil
	return err
}
