// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/churn/internal/app"
	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/internal/domain/pipeline"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictDependencies
	BatchDependencies
	SchemaDependencies
}

// DefaultMaxBodyBytes caps request bodies when the server is built without a limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	batchHandler   *BatchHandler
	schemaHandler  *SchemaHandler
}

// NewServer creates a new API server with all handlers. maxBodyBytes bounds
// every POST body; non-positive values use DefaultMaxBodyBytes.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxBodyBytes int64) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		predictHandler: NewPredictHandler(deps, maxBodyBytes),
		batchHandler:   NewBatchHandler(deps, maxBodyBytes),
		schemaHandler:  NewSchemaHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/schema", MetricsMiddleware(s.schemaHandler.HandleGetSchema, "schema"))
	mux.HandleFunc("/predict/batch", MetricsMiddleware(s.batchHandler.HandlePostBatch, "predict_batch"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePostPredict, "predict"))
}

// predictionResponse is the JSON shape of one scored record.
type predictionResponse struct {
	RequestID      string      `json:"request_id,omitempty"`
	Prediction     model.Label `json:"prediction"`
	Label          string      `json:"label"`
	Proba          float64     `json:"proba"`
	RetentionProba float64     `json:"retention_proba"`
	RawScore       float64     `json:"raw_score"`
	Verdict        string      `json:"verdict"`
}

func newPredictionResponse(id string, p model.Prediction) predictionResponse {
	return predictionResponse{
		RequestID:      id,
		Prediction:     p.Label,
		Label:          p.Label.String(),
		Proba:          p.Probability,
		RetentionProba: p.RetentionProbability(),
		RawScore:       p.RawScore,
		Verdict:        Verdict(p),
	}
}

// Verdict renders the customer-facing sentence for a prediction.
func Verdict(p model.Prediction) string {
	if p.Label == model.Churn {
		return "The customer is likely to cancel the service."
	}
	return "The customer is unlikely to cancel the service."
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a JSON body of at most limit bytes into v. Numbers are
// kept as json.Number so integer features survive unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// writeServiceError responds to an error returned by the service. Unexpected
// failures carry only the operation; known kinds carry op and kind.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code, kind := classify(err)
	if kind == ErrInternal {
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeError(w, status, code, WrapKind(op, kind, err))
}

// classify maps a service error to a status code, an error code and an API kind.
func classify(err error) (int, string, error) {
	switch {
	case pipeline.IsRecordError(err):
		return http.StatusUnprocessableEntity, service.ErrorKind(err), ErrUnprocessable
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_ready", ErrUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled", ErrUnavailable
	default:
		return http.StatusInternalServerError, "internal_error", ErrInternal
	}
}
