package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps - то, что сервер показывает в /healthz и /readyz
type Deps struct {
	StartTime time.Time
	Links     func() int
	Pending   func() int
	Ready     func() bool
}

// Server отдает /healthz, /readyz и /metrics
type Server struct {
	http *http.Server
}

func New(addr string, d Deps) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/healthz", healthz(d))
	r.Get("/readyz", readyz(d))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start блокируется до ошибки или Stop
func (s *Server) Start() error {
	logrus.Infof("HTTP server listening on %s", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	logrus.Info("HTTP server shutting down...")
	return s.http.Shutdown(ctx)
}

type healthzResponse struct {
	Status           string  `json:"status"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Links            int     `json:"links"`
	PendingDeletions int     `json:"pending_deletions"`
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
		}
		if d.Links != nil {
			resp.Links = d.Links()
		}
		if d.Pending != nil {
			resp.PendingDeletions = d.Pending()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type readyzResponse struct {
	Ready bool `json:"ready"`
}

func readyz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := d.Ready == nil || d.Ready()

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(readyzResponse{Ready: ready})
	}
}
