package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// FeedbackRecorder records prediction-accuracy feedback.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, orgID uuid.UUID, predictionID string, accurate bool) (*models.PredictionFeedback, error)
}

// NewFeedbackHandler returns the handler for POST /api/v1/orgs/{orgID}/ml/feedback.
func NewFeedbackHandler(svc FeedbackRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var req struct {
			PredictionID string `json:"prediction_id"`
			Accurate     *bool  `json:"accurate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.PredictionID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "prediction_id is required", nil)
			return
		}
		if req.Accurate == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "accurate is required", nil)
			return
		}

		fb, err := svc.RecordFeedback(r.Context(), orgID, req.PredictionID, *req.Accurate)
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

		response.Created(w, fb)
	}
}
