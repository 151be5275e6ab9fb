package models

import "github.com/google/uuid"

// OrgFeedbackCount is the per-organization slice of a system stats projection.
type OrgFeedbackCount struct {
	OrgID       uuid.UUID `json:"org_id"`
	Predictions int       `json:"predictions"`
	Accurate    int       `json:"accurate"`
}

// SystemStats is a derived view over the trailing window of training jobs and
// prediction feedback. It is recomputed on demand and never persisted.
type SystemStats struct {
	WindowHours         int                `json:"window_hours"`
	SystemAccuracy      float64            `json:"system_accuracy"`
	TrainingSuccessRate float64            `json:"training_success_rate"`
	JobsCompleted       int                `json:"jobs_completed"`
	JobsFailed          int                `json:"jobs_failed"`
	TotalFeedback       int                `json:"total_feedback"`
	Organizations       []OrgFeedbackCount `json:"organizations"`
	CacheSize           int                `json:"cache_size"`
	CacheMaxSize        int                `json:"cache_max_size"`
}
