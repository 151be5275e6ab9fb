package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/mlconfig"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// ConfigService owns organization ML configurations.
type ConfigService interface {
	Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationMLConfig, error)
	Update(ctx context.Context, orgID uuid.UUID, upd mlconfig.Update) (*models.OrganizationMLConfig, error)
}

// NewGetConfigHandler returns the handler for GET /api/v1/orgs/{orgID}/ml/config.
func NewGetConfigHandler(svc ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		cfg, err := svc.Get(r.Context(), orgID)
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

		response.JSON(w, cfg)
	}
}

// NewUpdateConfigHandler returns the handler for PATCH /api/v1/orgs/{orgID}/ml/config.
// The body is a partial update; omitted fields keep their stored values. A
// first update for an unknown org creates the config from defaults.
func NewUpdateConfigHandler(svc ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var upd mlconfig.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		cfg, err := svc.Update(r.Context(), orgID, upd)
		if err != nil {
			var verr *mlconfig.ValidationError
			switch {
			case errors.As(err, &verr):
				response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED",
					"Configuration update rejected", verr.Problems)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Organization has no ML configuration", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, cfg)
	}
}
