// Package api exposes the streaming websocket, the one-shot synthesis
// endpoint and the operational endpoints over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"

	"github.com/witwicki/streaming-xtts/internal/app/session"
)

type Config struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type API struct {
	cfg *Config

	logger *slog.Logger

	manager *session.Manager

	metrics prometheus.Gatherer

	ready atomic.Bool
}

func NewAPI(cfg *Config, logger *slog.Logger, manager *session.Manager, metrics prometheus.Gatherer) *API {
	return &API{
		cfg: cfg,

		logger: logger,

		manager: manager,

		metrics: metrics,
	}
}

// SetReady flips the readiness endpoint. The server turns it on once the
// listener is up and off when shutdown starts, so load balancers stop
// routing new sessions while active ones drain.
func (api *API) SetReady(ready bool) {
	api.ready.Store(ready)
}

func (api *API) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(slogchi.New(api.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.StripSlashes)

	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.HandlerFor(api.metrics, promhttp.HandlerOpts{}))

	router.Get("/healthz", api.healthz)
	router.Get("/readyz", api.readyz)

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/stream", api.streamHandler)
		router.Post("/speak", api.speakHandler)
	})

	return router
}

func (api *API) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (api *API) readyz(w http.ResponseWriter, r *http.Request) {
	if !api.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
