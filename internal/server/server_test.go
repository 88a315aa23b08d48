package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fraud-detector/internal/metrics"
	"fraud-detector/internal/ml"
	"fraud-detector/internal/ml/mltest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowJSON(t *testing.T, row []float64) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"features": row})
	require.NoError(t, err)
	return string(data)
}

func TestServer_EndToEndWithForest(t *testing.T) {
	path := mltest.WriteForest(t, t.TempDir(), 29)
	model, err := ml.Load(path, ml.Options{})
	require.NoError(t, err)
	defer model.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	mw := metrics.NewWrapper(m)
	srv := New(":0", ml.Instrument(model, mw), nil, Options{FeatureCount: model.NumFeatures(), Metrics: mw},
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	testCases := []struct {
		name  string
		row   []float64
		fraud bool
	}{
		{"legitimate", mltest.Row(29, nil), false},
		{"fraudulent", mltest.Row(29, map[int]float64{0: 1}), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader(rowJSON(t, tc.row)))
				require.NoError(t, err)

				var body PredictResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				resp.Body.Close()

				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, tc.fraud, body.Fraud)
			}
		})
	}

	resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader(rowJSON(t, make([]float64, 28))))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, float64(4), testutil.ToFloat64(m.Predictions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FraudVerdicts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvalidRequests))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequestID(t *testing.T) {
	srv := New(":0", labelStub(0), nil, Options{}, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestServer_RecoversModelPanic(t *testing.T) {
	stub := &ml.StubClassifier{
		PredictFn: func(ctx context.Context, rows [][]float64) ([]int, error) {
			panic("index out of range in native extension")
		},
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	srv := New(":0", stub, nil, Options{FeatureCount: 1, Metrics: metrics.NewWrapper(m)}, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"features": [0]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "Internal server error"}`, rec.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InternalErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("500")))
}

func TestServer_HealthCountsPredictions(t *testing.T) {
	srv := New(":0", labelStub(1), nil, Options{FeatureCount: 1}, http.NotFoundHandler())
	h := srv.Handler()

	for _, body := range []string{`{"features": [0]}`, `{"features": [1]}`, `{}`} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.ModelLoaded)
	assert.Equal(t, int64(2), health.Predictions)
	assert.GreaterOrEqual(t, health.Uptime, 0.0)
}

func TestServer_ModelInfo(t *testing.T) {
	md := &ml.Metadata{
		Version:      "v3",
		TrainedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Features:     []string{"V1", "V2"},
		Accuracy:     0.99,
		ArtifactPath: "fraud_model.pkl",
	}
	srv := New(":0", labelStub(0), md, Options{FeatureCount: 2}, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info ModelInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "v3", info.Version)
	assert.Equal(t, 2, info.NumFeatures)
	assert.Equal(t, []string{"V1", "V2"}, info.Features)
	assert.Equal(t, "fraud_model.pkl", info.ArtifactPath)
}

func TestServer_StartShutdown(t *testing.T) {
	srv := New("127.0.0.1:0", labelStub(0), nil, Options{}, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
