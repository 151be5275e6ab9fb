package handler

import (
	"context"
	"net/http"

	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

const (
	defaultWindowHours = 24
	maxWindowHours     = 24 * 30
)

// StatsSource computes system-wide performance projections.
type StatsSource interface {
	SystemStats(ctx context.Context, windowHours int) (*models.SystemStats, error)
}

// NewSystemStatsHandler returns the handler for GET /api/v1/system/stats.
func NewSystemStatsHandler(svc StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := defaultWindowHours
		if raw := r.URL.Query().Get("window_hours"); raw != "" {
			n, err := parsePositiveInt(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"window_hours must be a positive integer", nil)
				return
			}
			window = n
		}
		if window > maxWindowHours {
			window = maxWindowHours
		}

		out, err := svc.SystemStats(r.Context(), window)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, out)
	}
}
