package desk

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fraud-detector/internal/scoring"
	"fraud-detector/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, scorer Scorer) (http.Handler, *Service) {
	t.Helper()
	svc := NewService(scorer, newStore(t), nil, nil)
	return NewRouter(svc, nil, RouterOptions{MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})}), svc
}

func do(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheck(t *testing.T) {
	h, svc := newTestRouter(t, firstPositive())

	rec := do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [1, 2, 3]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fraud": true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [-1]}`)
	assert.JSONEq(t, `{"fraud": false}`, rec.Body.String())

	all, err := svc.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCheck_BadRequests(t *testing.T) {
	scorer := firstPositive()
	h, _ := newTestRouter(t, scorer)

	testCases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing features", `{}`, "features must not be null"},
		{"null features", `{"features": null}`, "features must not be null"},
		{"malformed", `{"features": [1,`, "malformed request body"},
		{"string element", `{"features": ["1"]}`, "malformed request body"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/transactions/check", "application/json", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantErr, resp["error"])
		})
	}
	assert.Empty(t, scorer.calls)
}

func TestCheck_ScoringErrors(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantErr    string
	}{
		{"rejected", &scoring.RejectedError{Message: "Expected 29 features"}, http.StatusBadRequest, "Expected 29 features"},
		{"unavailable", errors.New("dial tcp: connection refused"), http.StatusBadGateway, "scoring service unavailable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestRouter(t, &fakeScorer{fn: func([]float64) (bool, error) { return false, tc.err }})

			rec := do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": []}`)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.JSONEq(t, `{"error": "`+tc.wantErr+`"}`, rec.Body.String())
		})
	}
}

func TestAddForm_JSON(t *testing.T) {
	h, _ := newTestRouter(t, firstPositive())

	rec := do(h, http.MethodPost, "/api/transactions/add-form", "application/json", `{"features": [5]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fraud": true, "message": "Transaction processed successfully"}`, rec.Body.String())
}

func TestAdd_HTMLForm(t *testing.T) {
	h, svc := newTestRouter(t, firstPositive())

	form := url.Values{"features": {"0.5, -1, 3"}}.Encode()
	rec := do(h, http.MethodPost, "/api/transactions/add", "application/x-www-form-urlencoded", form)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/transactions/view", rec.Header().Get("Location"))

	all, err := svc.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float64{0.5, -1, 3}, all[0].Features)

	rec = do(h, http.MethodPost, "/api/transactions/add", "application/x-www-form-urlencoded", "features=1,x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllAndDashboard(t *testing.T) {
	h, _ := newTestRouter(t, firstPositive())

	rec := do(h, http.MethodGet, "/api/transactions/all", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, body := range []string{`{"features": [1]}`, `{"features": [2]}`, `{"features": [-2]}`} {
		require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/transactions/check", "application/json", body).Code)
	}

	rec = do(h, http.MethodGet, "/api/transactions/all", "", "")
	var txs []storage.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 3)

	rec = do(h, http.MethodGet, "/api/transactions/dashboard", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total": 3, "fraudCount": 2, "safeCount": 1}`, rec.Body.String())
}

func TestPages(t *testing.T) {
	h, _ := newTestRouter(t, firstPositive())
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [1]}`).Code)

	rec := do(h, http.MethodGet, "/api/transactions/view", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "FRAUD")
	assert.Contains(t, rec.Body.String(), "Total: 1")

	rec = do(h, http.MethodGet, "/api/transactions/add", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/api/transactions/add"`)
}

func TestExport(t *testing.T) {
	h, _ := newTestRouter(t, firstPositive())
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [1, 2]}`).Code)

	rec := do(h, http.MethodGet, "/api/transactions/export", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "V1,V2,Class\n1,2,1\n", rec.Body.String())

	// An empty range keeps the dataset header.
	rec = do(h, http.MethodGet, "/api/transactions/export?from=2000-01-01T00:00:00Z&to=2000-01-02T00:00:00Z", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strings.Join(FeatureNames, ",")+",Class\n", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "V1,V2,"))

	rec = do(h, http.MethodGet, "/api/transactions/export?from=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthMetricsAndMethods(t *testing.T) {
	h, _ := newTestRouter(t, firstPositive())

	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, "# metrics", rec.Body.String())

	for _, path := range []string{"/api/transactions/check", "/api/transactions/add-form"} {
		rec = do(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.JSONEq(t, `{"error": "method not allowed"}`, rec.Body.String(), path)
	}

	rec = do(h, http.MethodDelete, "/api/transactions/all", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(h, http.MethodGet, "/api/transactions/stream", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheck_RateLimited(t *testing.T) {
	svc := NewService(firstPositive(), newStore(t), nil, nil)
	h := NewRouter(svc, nil, RouterOptions{RateLimit: 0.001})

	rec := do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [1]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/api/transactions/check", "application/json", `{"features": [1]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec = do(h, http.MethodGet, "/api/transactions/all", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
