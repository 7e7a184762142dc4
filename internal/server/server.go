// Package server exposes the sync engine's command surface over HTTP.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/metrics"
	"github.com/stayloop/availsync/internal/serverutil"
	"github.com/stayloop/availsync/internal/syncer"
)

type (
	// Server handles sync commands: trigger a property sync, run a full
	// pass, probe a source URL, and inspect active syncs and history.
	Server struct {
		*http.Server

		svc     *syncer.Service
		props   availsync.PropertyRepo
		records availsync.RecordRepo
	}

	Config struct {
		Port       int
		CorsHeader string
	}
)

func New(cfg Config, svc *syncer.Service, props availsync.PropertyRepo, records availsync.RecordRepo, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		svc:     svc,
		props:   props,
		records: records,
	}

	r := serverutil.ErrRouter{Router: mux.NewRouter()}
	r.Use(serverutil.AccessLogMiddleware)

	r.HandleFuncE("/v1/properties/{id}/sync", s.handleSyncProperty).Methods(http.MethodPost)
	r.HandleFuncE("/v1/properties/{id}/sync", s.handleCancelSync).Methods(http.MethodDelete)
	r.HandleFuncE("/v1/properties/{id}/calendar", s.handleCalendar).Methods(http.MethodGet)
	r.HandleFuncE("/v1/sync/run", s.handleSyncRun).Methods(http.MethodPost)
	r.HandleFuncE("/v1/sync/active", s.handleActiveSyncs).Methods(http.MethodGet)
	r.HandleFuncE("/v1/sync/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFuncE("/v1/sources/test", s.handleTestSource).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{cfg.CorsHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	s.Server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     cors(r),
		ReadTimeout: 10 * time.Second,
		// No write deadline: sync commands respond only after the run
		// finishes, which can take minutes.
	}

	return s
}

// Router returns the handler for tests that drive the server through
// httptest.
func (s *Server) Router() http.Handler {
	return s.Server.Handler
}
