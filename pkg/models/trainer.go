package models

import (
	"context"

	"github.com/google/uuid"
)

// Trainer is the core interface to the external training collaborator.
// Never call a specific training backend directly — always inject this
// interface. Implementations may block for minutes; callers control the
// deadline through ctx.
type Trainer interface {
	// Train runs one full training pass for an organization and returns the
	// resulting model handle and evaluation metrics.
	Train(ctx context.Context, req TrainRequest) (TrainResult, error)
	// Name returns the backend identifier (e.g., "httpapi", "script").
	Name() string
}

// TrainRequest is the input to a training run.
type TrainRequest struct {
	OrgID           uuid.UUID
	Hyperparameters Hyperparameters
	DataRangeDays   int
}

// ModelHandle identifies a trained model artifact. The core treats it as
// opaque: it is produced by the trainer, parked in the model cache, and handed
// back to callers of GetModelInfo.
type ModelHandle struct {
	Version      string `json:"version"`
	Format       string `json:"format"`
	ArtifactPath string `json:"artifact_path"`
	SizeBytes    int64  `json:"size_bytes"`
}

// TrainResult is the output of a successful training run.
type TrainResult struct {
	Handle  ModelHandle
	Metrics TrainingMetrics
}
