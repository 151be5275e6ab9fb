package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/stats"
	"github.com/sreevalsan/mltrainer/internal/store"
)

// ModelInfoSource assembles the per-organization model dashboard view.
type ModelInfoSource interface {
	ModelInfo(ctx context.Context, orgID uuid.UUID) (*stats.ModelInfo, error)
}

// NewModelInfoHandler returns the handler for GET /api/v1/orgs/{orgID}/ml/model.
func NewModelInfoHandler(svc ModelInfoSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		info, err := svc.ModelInfo(r.Context(), orgID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Organization has no ML configuration", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, info)
	}
}
