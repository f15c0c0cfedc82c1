// Package httpapi serves the JSON API: entity CRUD, job submission and
// artifact retrieval, plugin inspection, and operational endpoints.
package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"floracore/internal/blob"
	"floracore/internal/core"
	"floracore/internal/jobs"
)

// HTTPObserver receives one observation per served request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveHTTP(string, string, int, time.Duration) {}

// Options configures a Server. Service, Worker, and Blobs are required;
// the rest default to inert implementations.
type Options struct {
	Service *core.Service
	Worker  *jobs.Worker
	Blobs   blob.Store
	Logger  logrus.FieldLogger
	// Observer receives per-request metrics observations.
	Observer HTTPObserver
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// Server is the HTTP front end. It implements http.Handler.
type Server struct {
	svc      *core.Service
	worker   *jobs.Worker
	blobs    blob.Store
	log      logrus.FieldLogger
	observer HTTPObserver
	metrics  http.Handler
	router   *mux.Router
}

// New assembles the router. The returned server is ready to serve.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("service required")
	}
	if opts.Worker == nil {
		return nil, fmt.Errorf("job worker required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	s := &Server{
		svc:      opts.Service,
		worker:   opts.Worker,
		blobs:    opts.Blobs,
		log:      log,
		observer: observer,
		metrics:  opts.Metrics,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Registered before the accession CRUD routes so the literal
	// segment is not captured as an {id}.
	api.HandleFunc("/accessions/next-code", s.handleNextCode).Methods(http.MethodGet)

	s.registerEntityRoutes(api)

	api.HandleFunc("/jobs", s.handleSubmitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/artifact", s.handleJobArtifact).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id}/failures", s.handleImportFailures).Methods(http.MethodGet)
	api.HandleFunc("/plugins", s.handlePlugins).Methods(http.MethodGet)
	api.HandleFunc("/openapi.yaml", s.handleOpenAPISpec).Methods(http.MethodGet)

	return r
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.observer.ObserveHTTP(r.Method, route, rec.status, duration)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": duration.Milliseconds(),
		}).Info("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
