// Package httpapi implements the training collaborator as a client of a
// remote training service.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/trainer/trainererrors"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// Trainer implements models.Trainer against the training service's HTTP API.
// The train endpoint blocks until the run finishes, so calls may take
// minutes; the caller's context carries the deadline.
type Trainer struct {
	baseURL string
	client  *http.Client
}

// NewTrainer creates a new HTTP training client.
func NewTrainer(cfg config.HTTPAPIConfig) *Trainer {
	return &Trainer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *Trainer) Name() string { return "httpapi" }

type trainRequestBody struct {
	OrgID           uuid.UUID              `json:"org_id"`
	Hyperparameters models.Hyperparameters `json:"hyperparameters"`
	DataRangeDays   int                    `json:"data_range_days"`
}

type trainResponseBody struct {
	Status  string                 `json:"status"`
	Error   string                 `json:"error"`
	Model   modelBody              `json:"model"`
	Metrics models.TrainingMetrics `json:"metrics"`
}

type modelBody struct {
	Version      string `json:"version"`
	Format       string `json:"format"`
	ArtifactPath string `json:"artifact_path"`
	SizeBytes    int64  `json:"size_bytes"`
}

func (t *Trainer) Train(ctx context.Context, req models.TrainRequest) (models.TrainResult, error) {
	body, err := json.Marshal(trainRequestBody{
		OrgID:           req.OrgID,
		Hyperparameters: req.Hyperparameters,
		DataRangeDays:   req.DataRangeDays,
	})
	if err != nil {
		return models.TrainResult{}, fmt.Errorf("encoding train request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/train", t.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.TrainResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return models.TrainResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TrainResult{}, fmt.Errorf("%w: status %d", trainererrors.ErrTrainingFailed, resp.StatusCode)
	}

	var trainResp trainResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&trainResp); err != nil {
		return models.TrainResult{}, fmt.Errorf("%w: %v", trainererrors.ErrInvalidResponse, err)
	}

	if trainResp.Status != "" && trainResp.Status != "completed" {
		return models.TrainResult{}, fmt.Errorf("%w: %s", trainererrors.ErrTrainingFailed, trainResp.Error)
	}
	if trainResp.Model.Version == "" {
		return models.TrainResult{}, fmt.Errorf("%w: missing model version", trainererrors.ErrInvalidResponse)
	}

	format := trainResp.Model.Format
	if format == "" {
		format = "onnx"
	}

	return models.TrainResult{
		Handle: models.ModelHandle{
			Version:      trainResp.Model.Version,
			Format:       format,
			ArtifactPath: trainResp.Model.ArtifactPath,
			SizeBytes:    trainResp.Model.SizeBytes,
		},
		Metrics: trainResp.Metrics,
	}, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", trainererrors.ErrTrainingTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", trainererrors.ErrTrainingTimeout, err)
		}
		return fmt.Errorf("%w: %v", trainererrors.ErrBackendUnavailable, err)
	}

	return fmt.Errorf("%w: %v", trainererrors.ErrBackendUnavailable, err)
}

// Compile-time check that Trainer implements models.Trainer.
var _ models.Trainer = (*Trainer)(nil)
