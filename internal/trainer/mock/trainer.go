// Package mock provides a models.Trainer double for tests and local
// development.
package mock

import (
	"context"
	"time"

	"github.com/sreevalsan/mltrainer/internal/trainer/trainererrors"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// MockTrainer satisfies models.Trainer for testing.
type MockTrainer struct {
	Name_     string
	TrainFunc func(ctx context.Context, req models.TrainRequest) (models.TrainResult, error)
}

func (m *MockTrainer) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *MockTrainer) Train(ctx context.Context, req models.TrainRequest) (models.TrainResult, error) {
	if m.TrainFunc != nil {
		return m.TrainFunc(ctx, req)
	}
	return defaultResult(), nil
}

func defaultResult() models.TrainResult {
	return models.TrainResult{
		Handle: models.ModelHandle{
			Version:      "v" + time.Now().UTC().Format("20060102_150405"),
			Format:       "onnx",
			ArtifactPath: "/models/mock.onnx",
			SizeBytes:    1 << 20,
		},
		Metrics: models.TrainingMetrics{
			Accuracy:  0.91,
			Precision: 0.88,
			Recall:    0.90,
			AUC:       0.93,
		},
	}
}

// NewTrainer returns a MockTrainer with sensible default responses.
func NewTrainer() *MockTrainer {
	return &MockTrainer{Name_: "mock"}
}

// NewFailingTrainer returns a MockTrainer that always returns the given error.
func NewFailingTrainer(err error) *MockTrainer {
	return &MockTrainer{
		Name_: "mock-failing",
		TrainFunc: func(_ context.Context, _ models.TrainRequest) (models.TrainResult, error) {
			return models.TrainResult{}, err
		},
	}
}

// NewBlockingTrainer returns a MockTrainer that blocks until its context is
// cancelled, then reports a timeout.
func NewBlockingTrainer() *MockTrainer {
	return &MockTrainer{
		Name_: "mock-blocking",
		TrainFunc: func(ctx context.Context, _ models.TrainRequest) (models.TrainResult, error) {
			<-ctx.Done()
			return models.TrainResult{}, trainererrors.ErrTrainingTimeout
		},
	}
}

// Compile-time check that MockTrainer implements models.Trainer.
var _ models.Trainer = (*MockTrainer)(nil)
