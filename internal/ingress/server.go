package ingress

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idgateway/internal/pool"
	"idgateway/internal/queuestore"
	"idgateway/internal/shared/logger"
)

// Server runs the HTTP ingress surface from spec.md §4.5/§6.
type Server struct {
	http *http.Server
}

// New builds the router: RequestID -> Recoverer -> Metrics -> Logging ->
// routes, with API-key auth gating only the add-steam-id endpoint.
func New(port int, apiKey string, queue *queuestore.Store, p *pool.Pool) *Server {
	h := NewHandlers(queue, p)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(requestLogging)

	r.Get("/api/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(apiKeyAuth(apiKey))
		r.Post("/api/add-steam-id", h.AddSteamID)
		r.Get("/api/add-steam-id", h.AddSteamID)
	})

	return &Server{
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		},
	}
}

func (s *Server) Start() error {
	logger.WithComponent("ingress").Info().Str("addr", s.http.Addr).Msg("starting ingress server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
