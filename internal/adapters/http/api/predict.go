package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/churn/internal/app"
	"github.com/okian/churn/internal/domain/model"
)

// PredictDependencies scores a single record.
type PredictDependencies interface {
	Predict(ctx context.Context, rec model.FeatureRecord) (service.Outcome, error)
}

// PredictHandler handles single-record scoring.
type PredictHandler struct {
	deps         PredictDependencies
	maxBodyBytes int64
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies, maxBodyBytes int64) *PredictHandler {
	return &PredictHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandlePostPredict handles POST /predict requests. The body is one JSON
// object keyed by feature name.
func (h *PredictHandler) HandlePostPredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var rec model.FeatureRecord
	if err := decodeBody(w, r, h.maxBodyBytes, &rec); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", NewKind(op, ErrBodyTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if rec == nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("body must be a JSON object")))
		return
	}

	out, err := h.deps.Predict(r.Context(), rec)
	if err != nil {
		if out.RequestID != "" {
			w.Header().Set("X-Request-ID", out.RequestID)
		}
		writeServiceError(w, op, err)
		return
	}
	w.Header().Set("X-Request-ID", out.RequestID)
	writeJSON(w, http.StatusOK, newPredictionResponse(out.RequestID, out.Prediction))
}
