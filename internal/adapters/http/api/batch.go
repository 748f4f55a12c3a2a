package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/churn/internal/app"
	"github.com/okian/churn/internal/domain/model"
)

// BatchDependencies scores many records in one call.
type BatchDependencies interface {
	PredictBatch(ctx context.Context, records []model.FeatureRecord) (service.BatchOutcome, error)
}

// BatchHandler handles batch scoring.
type BatchHandler struct {
	deps         BatchDependencies
	maxBodyBytes int64
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(deps BatchDependencies, maxBodyBytes int64) *BatchHandler {
	return &BatchHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

type batchRequest struct {
	Records []model.FeatureRecord `json:"records"`
}

// batchItem carries either a prediction or the reason the record was refused.
type batchItem struct {
	Index      int          `json:"index"`
	Prediction *model.Label `json:"prediction,omitempty"`
	Label      string       `json:"label,omitempty"`
	Proba      *float64     `json:"proba,omitempty"`
	RawScore   *float64     `json:"raw_score,omitempty"`
	Error      string       `json:"error,omitempty"`
	Code       string       `json:"code,omitempty"`
}

type batchResponse struct {
	RequestID string      `json:"request_id"`
	Results   []batchItem `json:"results"`
	Failed    int         `json:"failed"`
}

// HandlePostBatch handles POST /predict/batch requests.
func (h *BatchHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := decodeBody(w, r, h.maxBodyBytes, &req); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", NewKind(op, ErrBodyTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.PredictBatch(r.Context(), req.Records)
	switch {
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", WrapKind(op, ErrBodyTooLarge, err))
		return
	case errors.Is(err, service.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "empty_batch", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		writeServiceError(w, op, err)
		return
	}

	resp := batchResponse{RequestID: out.RequestID, Results: make([]batchItem, len(out.Results))}
	for i, res := range out.Results {
		item := batchItem{Index: res.Index}
		if res.Err != nil {
			_, item.Code, _ = classify(res.Err)
			item.Error = res.Err.Error()
			resp.Failed++
		} else {
			label, proba, raw := res.Prediction.Label, res.Prediction.Probability, res.Prediction.RawScore
			item.Prediction, item.Proba, item.RawScore = &label, &proba, &raw
			item.Label = label.String()
		}
		resp.Results[i] = item
	}
	w.Header().Set("X-Request-ID", out.RequestID)
	writeJSON(w, http.StatusOK, resp)
}
