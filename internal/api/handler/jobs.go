package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

const (
	maxWait         = 60 * time.Second
	defaultJobLimit = 20
	maxJobLimit     = 50
)

// JobSource exposes an organization's current and historical jobs.
type JobSource interface {
	Status(ctx context.Context, orgID uuid.UUID) (*models.TrainingJob, error)
	Watch(orgID uuid.UUID) (<-chan models.TrainingJob, func())
}

// JobLister lists recent jobs. Satisfied by store.Store.
type JobLister interface {
	ListRecentJobs(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.TrainingJob, error)
}

// NewLatestJobHandler returns the handler for GET /api/v1/orgs/{orgID}/ml/jobs/latest.
// An optional ?wait=30s turns the request into a long poll: the response is
// delayed until the job changes state or the wait elapses.
func NewLatestJobHandler(svc JobSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var wait time.Duration
		if raw := r.URL.Query().Get("wait"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"wait must be a duration such as 30s", nil)
				return
			}
			if d > maxWait {
				d = maxWait
			}
			wait = d
		}

		// Subscribe before reading the current state so a transition
		// between the two cannot be missed.
		var events <-chan models.TrainingJob
		if wait > 0 {
			ch, cancel := svc.Watch(orgID)
			defer cancel()
			events = ch
		}

		job, err := svc.Status(r.Context(), orgID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"No training jobs for this organization", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if wait == 0 || job.Terminal() {
			response.JSON(w, job)
			return
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()
		for {
			select {
			case ev := <-events:
				if ev.Status != job.Status || ev.Terminal() {
					response.JSON(w, &ev)
					return
				}
			case <-timer.C:
				response.JSON(w, job)
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/orgs/{orgID}/ml/jobs.
func NewListJobsHandler(lister JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		limit := defaultJobLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := parsePositiveInt(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if limit > maxJobLimit {
			limit = maxJobLimit
		}

		jobs, err := lister.ListRecentJobs(r.Context(), orgID, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.TrainingJob{}
		}

		response.JSON(w, jobs)
	}
}
