// Package server exposes a model handle over HTTP. POST /predict accepts
// {"features": [...]} and answers {"fraud": bool}; invalid input is a 400
// and every other failure is a 500 whose cause stays in the log.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"fraud-detector/internal/common"
	"fraud-detector/internal/ml"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the endpoint
type MetricsInterface interface {
	RequestObserve(code int, seconds float64)
	InvalidInputInc()
	InternalErrorInc()
}

// Options configure a Handler.
type Options struct {
	FeatureCount int
	MaxBodyBytes int64
	Timeout      time.Duration
	Metrics      MetricsInterface
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	Fraud bool `json:"fraud"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves POST /predict against an injected model.
type Handler struct {
	model ml.Classifier
	opts  Options
}

// NewHandler returns a Handler scoring with model. Zero options fall back to
// the defaults in common.
func NewHandler(model ml.Classifier, opts Options) *Handler {
	if opts.FeatureCount <= 0 {
		opts.FeatureCount = common.DefaultFeatureCount
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = common.DefaultMaxBodyBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = common.DefaultPredictSeconds * time.Second
	}
	return &Handler{model: model, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: common.ErrMsgMethodNotAllowed}, start)
		return
	}

	fraud, err := h.predict(r)
	if err != nil {
		var invalid *InvalidInputError
		if errors.As(err, &invalid) {
			log.Warn().
				Str("request_id", requestID).
				Int("expected", invalid.Expected).
				Int("got", invalid.Got).
				Msg("Rejected feature vector")
			if h.opts.Metrics != nil {
				h.opts.Metrics.InvalidInputInc()
			}
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: invalid.Error()}, start)
			return
		}

		h.writeInternal(w, requestID, err, start)
		return
	}

	h.writeJSON(w, http.StatusOK, PredictResponse{Fraud: fraud}, start)
}

func (h *Handler) predict(r *http.Request) (bool, error) {
	requestID := RequestIDFrom(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxBodyBytes+1))
	if err != nil {
		return false, internalErr("read request body: %w", err)
	}
	if int64(len(body)) > h.opts.MaxBodyBytes {
		return false, internalErr("request body exceeds %d bytes", h.opts.MaxBodyBytes)
	}

	fv, err := DecodeFeatures(body, h.opts.FeatureCount)
	if err != nil {
		return false, err
	}

	log.Info().
		Str("request_id", requestID).
		Floats64("features", fv).
		Msg("Received features")

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	labels, err := h.score(ctx, fv)
	if err != nil {
		return false, err
	}
	if len(labels) != 1 {
		return false, internalErr("model returned %d labels for one row", len(labels))
	}

	return labels[0] != 0, nil
}

// score runs the model on a single row. A panicking model becomes an
// InternalError so the failure is counted like any other.
func (h *Handler) score(ctx context.Context, fv FeatureVector) (labels []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("request_id", RequestIDFrom(ctx)).
				Bytes("stack", debug.Stack()).
				Msg("Model panicked")
			err = internalErr("model panic: %v", rec)
		}
	}()

	labels, err = h.model.Predict(ctx, [][]float64{fv})
	if err != nil {
		return nil, internalErr("predict: %w", err)
	}
	return labels, nil
}

func (h *Handler) writeInternal(w http.ResponseWriter, requestID string, err error, start time.Time) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Msg("Prediction request failed")
	if h.opts.Metrics != nil {
		h.opts.Metrics.InternalErrorInc()
	}
	h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: common.ErrMsgInternal}, start)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any, start time.Time) {
	writeJSON(w, status, v)
	if h.opts.Metrics != nil {
		h.opts.Metrics.RequestObserve(status, time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
