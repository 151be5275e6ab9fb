// Package models contains shared data models used across the mltrainer codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Hyperparameters are the LightGBM-style knobs passed to the training
// collaborator. Bounds are enforced by the mlconfig service, not here.
type Hyperparameters struct {
	NumLeaves       int     `db:"num_leaves"       json:"num_leaves"`
	LearningRate    float64 `db:"learning_rate"    json:"learning_rate"`
	FeatureFraction float64 `db:"feature_fraction" json:"feature_fraction"`
	BaggingFraction float64 `db:"bagging_fraction" json:"bagging_fraction"`
	MaxDepth        int     `db:"max_depth"        json:"max_depth"` // -1 means unlimited
	NumIterations   int     `db:"num_iterations"   json:"num_iterations"`
}

// ScheduleSpec describes the recurring training schedule for an organization.
// Pattern is a standard 5-field cron expression; it is validated before being
// stored, so a persisted pattern always parses.
type ScheduleSpec struct {
	Pattern string     `db:"schedule_pattern" json:"pattern"`
	Enabled bool       `db:"schedule_enabled" json:"enabled"`
	LastRun *time.Time `db:"last_run"         json:"last_run,omitempty"`
	NextRun *time.Time `db:"next_run"         json:"next_run,omitempty"`
}

// OrganizationMLConfig is the authoritative per-organization training
// configuration. Owned by the mlconfig service; ModelVersion and ModelAccuracy
// are only ever written by the orchestrator on job completion.
type OrganizationMLConfig struct {
	OrgID             uuid.UUID       `db:"org_id"             json:"org_id"`
	PredictionEnabled bool            `db:"prediction_enabled" json:"prediction_enabled"`
	Hyperparameters   Hyperparameters `db:"-"                  json:"hyperparameters"`
	DataRangeDays     int             `db:"data_range_days"    json:"data_range_days"`
	Schedule          ScheduleSpec    `db:"-"                  json:"schedule"`
	ModelVersion      string          `db:"model_version"      json:"model_version"`
	ModelAccuracy     float64         `db:"model_accuracy"     json:"model_accuracy"`
	CreatedAt         time.Time       `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"         json:"updated_at"`
}

// DefaultHyperparameters returns the baseline LightGBM parameter set used when
// an organization first enables predictive maintenance.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		NumLeaves:       31,
		LearningRate:    0.05,
		FeatureFraction: 0.9,
		BaggingFraction: 0.8,
		MaxDepth:        -1,
		NumIterations:   100,
	}
}

// DefaultConfig returns a fresh configuration for an organization that has
// just enabled predictive maintenance: weekly Sunday 02:00 training over the
// trailing year of data, schedule disabled until explicitly turned on.
func DefaultConfig(orgID uuid.UUID) *OrganizationMLConfig {
	now := time.Now().UTC()
	return &OrganizationMLConfig{
		OrgID:             orgID,
		PredictionEnabled: true,
		Hyperparameters:   DefaultHyperparameters(),
		DataRangeDays:     365,
		Schedule: ScheduleSpec{
			Pattern: "0 2 * * 0",
			Enabled: false,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
