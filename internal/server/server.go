package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"fraud-detector/internal/ml"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server provides the HTTP API of the inference service
type Server struct {
	handler  *Handler
	metadata *ml.Metadata
	started  time.Time
	served   atomic.Int64
	server   *http.Server
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status      string  `json:"status"`
	ModelLoaded bool    `json:"model_loaded"`
	Uptime      float64 `json:"uptime_seconds"`
	Predictions int64   `json:"predictions"`
}

// ModelInfoResponse is returned by /model/info.
type ModelInfoResponse struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features,omitempty"`
	NumFeatures  int       `json:"n_features"`
	Accuracy     float64   `json:"accuracy,omitempty"`
	TrainingRows int       `json:"training_rows,omitempty"`
	ArtifactPath string    `json:"artifact_path"`
	AgeSeconds   float64   `json:"age_seconds"`
}

// New wires the endpoint for model into an http.Server listening on addr.
// A nil metricsHandler serves the default Prometheus registry.
func New(addr string, model ml.Classifier, md *ml.Metadata, opts Options, metricsHandler http.Handler) *Server {
	if md == nil {
		md = &ml.Metadata{Version: "unknown"}
	}
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	s := &Server{
		handler:  NewHandler(model, opts),
		metadata: md,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/predict", s.countServed(s.handler))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	mux.Handle("/metrics", metricsHandler)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      WithRequestID(Recover(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.handler.opts.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.server.Addr).
		Int("features", s.handler.opts.FeatureCount).
		Str("model_version", s.metadata.Version).
		Msg("Starting inference server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) countServed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusOK {
			s.served.Add(1)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		ModelLoaded: s.handler.model != nil,
		Uptime:      time.Since(s.started).Seconds(),
		Predictions: s.served.Load(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelInfoResponse{
		Version:      s.metadata.Version,
		TrainedAt:    s.metadata.TrainedAt,
		Features:     s.metadata.Features,
		NumFeatures:  s.handler.opts.FeatureCount,
		Accuracy:     s.metadata.Accuracy,
		TrainingRows: s.metadata.TrainingRows,
		ArtifactPath: s.metadata.ArtifactPath,
		AgeSeconds:   s.metadata.Age().Seconds(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
