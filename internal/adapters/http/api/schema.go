package api

import (
	"context"
	"net/http"

	"github.com/okian/churn/internal/domain/pipeline"
)

// SchemaDependencies describes the expected input record.
type SchemaDependencies interface {
	Schema(ctx context.Context) (pipeline.Schema, error)
}

// SchemaHandler handles schema requests.
type SchemaHandler struct {
	deps SchemaDependencies
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(deps SchemaDependencies) *SchemaHandler {
	return &SchemaHandler{deps: deps}
}

// HandleGetSchema handles GET /schema requests.
func (h *SchemaHandler) HandleGetSchema(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_schema"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s, err := h.deps.Schema(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
