package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// TrainingMetrics are the evaluation results reported by the training
// collaborator for a completed job.
type TrainingMetrics struct {
	Accuracy  float64 `db:"accuracy"  json:"accuracy"`
	Precision float64 `db:"precision" json:"precision"`
	Recall    float64 `db:"recall"    json:"recall"`
	AUC       float64 `db:"auc"       json:"auc"`
}

// TrainingJob tracks one execution of the training pipeline for an
// organization. The orchestrator guarantees at most one job per organization
// is ever in a non-terminal state; the API returns the job on trigger and the
// client polls (or long-polls) until status is completed or failed.
type TrainingJob struct {
	ID           uuid.UUID        `db:"id"            json:"id"`
	OrgID        uuid.UUID        `db:"org_id"        json:"org_id"`
	Status       string           `db:"status"        json:"status"`
	TriggeredBy  string           `db:"triggered_by"  json:"triggered_by"`
	StartedAt    time.Time        `db:"started_at"    json:"started_at"`
	FinishedAt   *time.Time       `db:"finished_at"   json:"finished_at,omitempty"`
	Metrics      *TrainingMetrics `db:"-"             json:"metrics,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time        `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *TrainingJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
