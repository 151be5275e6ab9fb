package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/orchestrator"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// TrainingTriggerer starts a training run for an organization.
type TrainingTriggerer interface {
	Trigger(ctx context.Context, orgID uuid.UUID, triggeredBy string) (*models.TrainingJob, error)
}

// NewTriggerTrainingHandler returns the handler for POST /api/v1/orgs/{orgID}/ml/train.
// The run is asynchronous: a 202 only means the job was accepted and queued.
func NewTriggerTrainingHandler(svc TrainingTriggerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.Trigger(r.Context(), orgID, models.TriggerManual)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrAlreadyRunning):
				response.Error(w, http.StatusConflict, "ALREADY_RUNNING",
					"A training job is already in progress for this organization", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Organization has no ML configuration", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}
