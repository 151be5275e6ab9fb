// Package trainererrors holds the trainer sentinel errors in a leaf package
// so backend subpackages can reference them without importing the parent
// trainer package (whose factory imports the backends).
package trainererrors

import "errors"

var (
	ErrBackendUnavailable = errors.New("training backend unavailable")
	ErrTrainingTimeout    = errors.New("training run timeout")
	ErrTrainingFailed     = errors.New("training run failed")
	ErrInvalidResponse    = errors.New("training backend returned invalid response")
)
