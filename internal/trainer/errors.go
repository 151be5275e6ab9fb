package trainer

import "github.com/sreevalsan/mltrainer/internal/trainer/trainererrors"

// Re-exported so callers keep using trainer.ErrX; the definitions live in
// trainererrors so backend subpackages can share them without an import cycle.
var (
	ErrBackendUnavailable = trainererrors.ErrBackendUnavailable
	ErrTrainingTimeout    = trainererrors.ErrTrainingTimeout
	ErrTrainingFailed     = trainererrors.ErrTrainingFailed
	ErrInvalidResponse    = trainererrors.ErrInvalidResponse
)
