package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"fraud-detector/internal/common"
	"fraud-detector/internal/scoring"
	"fraud-detector/internal/server"
	"fraud-detector/internal/storage"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const processedMessage = "Transaction processed successfully"

type checkRequest struct {
	Features *[]float64 `json:"features"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	MetricsHandler http.Handler // served on /metrics when set
	RateLimit      float64      // scoring requests per second, 0 disables
}

// NewRouter returns the desk's routes. hub may be nil, which disables the
// stream.
func NewRouter(svc *Service, hub *Hub, opts RouterOptions) *mux.Router {
	h := &handlers{svc: svc}
	limiter := newLimiter(opts.RateLimit)

	r := mux.NewRouter()
	r.Use(server.WithRequestID, server.Recover)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	api := func(path string) string { return common.TransactionsPath + path }
	r.Handle(api("/check"), rateLimited(limiter, h.handleCheck)).Methods("POST")
	r.Handle(api("/add-form"), rateLimited(limiter, h.handleAddJSON)).Methods("POST")
	r.Handle(api("/add"), rateLimited(limiter, h.handleAddForm)).Methods("POST")
	r.HandleFunc(api("/add"), h.handleAddPage).Methods("GET")
	r.HandleFunc(api("/all"), h.handleAll).Methods("GET")
	r.HandleFunc(api("/view"), h.handleView).Methods("GET")
	r.HandleFunc(api("/dashboard"), h.handleDashboard).Methods("GET")
	r.HandleFunc(api("/export"), h.handleExport).Methods("GET")
	if hub != nil {
		r.Handle(api("/stream"), hub).Methods("GET")
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods("GET")
	}

	return r
}

type handlers struct {
	svc *Service
}

func (h *handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	t, ok := h.checkJSON(w, r)
	if ok {
		writeJSON(w, http.StatusOK, map[string]any{"fraud": t.Fraud})
	}
}

func (h *handlers) handleAddJSON(w http.ResponseWriter, r *http.Request) {
	t, ok := h.checkJSON(w, r)
	if ok {
		writeJSON(w, http.StatusOK, map[string]any{"fraud": t.Fraud, "message": processedMessage})
	}
}

func (h *handlers) checkJSON(w http.ResponseWriter, r *http.Request) (storage.Transaction, bool) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return storage.Transaction{}, false
	}
	if req.Features == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "features must not be null"})
		return storage.Transaction{}, false
	}

	t, err := h.svc.CheckFraud(scoringContext(r), *req.Features)
	if err != nil {
		writeServiceError(w, r, err)
		return storage.Transaction{}, false
	}
	return t, true
}

func (h *handlers) handleAddForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form"})
		return
	}
	features, err := ParseFeatureList(r.PostForm.Get("features"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := h.svc.CheckFraud(scoringContext(r), features); err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, common.TransactionsPath+"/view", http.StatusSeeOther)
}

func (h *handlers) handleAll(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.All()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Dashboard()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handlers) handleView(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.All()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sum, err := h.svc.Dashboard()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	renderHTML(w, viewTemplate, map[string]any{"Transactions": txs, "Summary": sum})
}

func (h *handlers) handleAddPage(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, addTemplate, map[string]any{"Action": common.TransactionsPath + "/add"})
}

// handleExport streams a training CSV. from and to are optional RFC 3339
// bounds; they default to the Unix epoch and now.
func (h *handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "from", time.Unix(0, 0).UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	end, err := parseTimeParam(r, "to", time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	rows, err := h.svc.Export(w, start, end)
	if err != nil {
		log.Error().Err(err).Msg("Training export failed")
		return
	}
	log.Info().Int("rows", rows).Time("from", start).Time("to", end).Msg("Exported transactions")
}

func parseTimeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected an RFC 3339 time", name)
	}
	if t.Before(time.Unix(0, 0)) {
		return time.Unix(0, 0).UTC(), nil
	}
	return t, nil
}

func scoringContext(r *http.Request) context.Context {
	return scoring.WithRequestID(r.Context(), server.RequestIDFrom(r.Context()))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := server.RequestIDFrom(r.Context())

	var rejected *scoring.RejectedError
	if errors.As(err, &rejected) {
		log.Warn().Err(err).Str("request_id", requestID).Msg("Inference service rejected features")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: rejected.Message})
		return
	}

	var scoringErr *ScoringError
	if errors.As(err, &scoringErr) {
		log.Error().Err(err).Str("request_id", requestID).Msg("Inference service call failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "scoring service unavailable"})
		return
	}

	log.Error().Err(err).Str("request_id", requestID).Msg("Desk request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: common.ErrMsgInternal})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func renderHTML(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html")
	if err := t.Execute(w, data); err != nil {
		log.Error().Err(err).Str("template", t.Name()).Msg("Failed to render page")
	}
}
