package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/sreevalsan/mltrainer/internal/api/middleware"
	"github.com/sreevalsan/mltrainer/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	GetConfigHandler    http.HandlerFunc
	UpdateConfigHandler http.HandlerFunc
	TriggerHandler      http.HandlerFunc
	LatestJobHandler    http.HandlerFunc
	ListJobsHandler     http.HandlerFunc
	ModelInfoHandler    http.HandlerFunc
	FeedbackHandler     http.HandlerFunc
	SystemStatsHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/orgs/{orgID}/ml", func(r chi.Router) {
			r.Get("/config", orNotImplemented(deps.GetConfigHandler))
			r.Patch("/config", orNotImplemented(deps.UpdateConfigHandler))

			r.Post("/train", orNotImplemented(deps.TriggerHandler))
			r.Get("/jobs/latest", orNotImplemented(deps.LatestJobHandler))
			r.Get("/jobs", orNotImplemented(deps.ListJobsHandler))

			r.Get("/model", orNotImplemented(deps.ModelInfoHandler))
			r.Post("/feedback", orNotImplemented(deps.FeedbackHandler))
		})

		r.Get("/api/v1/system/stats", orNotImplemented(deps.SystemStatsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
