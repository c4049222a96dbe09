package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatestProductSource returns the most recently loaded product summary.
type LatestProductSource interface {
	LatestProduct(ctx context.Context) (domain.MosaicProduct, bool, error)
}

// Server exposes health, readiness, metrics and latest-product HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /products/latest routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, latest LatestProductSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /products/latest", s.handleLatest(latest))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatest(source LatestProductSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		product, ok, err := source.LatestProduct(ctx)
		switch {
		case err != nil:
			s.logger.Error("latest product lookup failed", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		case !ok:
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no product decoded yet"})
		default:
			sharedobs.WriteJSON(w, http.StatusOK, product)
		}
	}
}
