// Package script implements the training collaborator by executing a local
// training command (typically the Python training pipeline) and parsing the
// metrics document it writes to stdout.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/trainer/trainererrors"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// Trainer runs a training command per request. The command receives the
// organization and hyperparameters as flags and must print a single JSON
// document on stdout:
//
//	{"accuracy":0.91,"precision":0.88,"recall":0.9,"auc":0.93,
//	 "model_path":"/models/org/v20260310_020000.onnx",
//	 "version":"v20260310_020000","size_bytes":1048576}
type Trainer struct {
	command string
	workDir string
}

// NewTrainer creates a script-execution trainer.
func NewTrainer(cfg config.ScriptConfig) *Trainer {
	return &Trainer{command: cfg.Command, workDir: cfg.WorkDir}
}

func (t *Trainer) Name() string { return "script" }

type scriptOutput struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	AUC       float64 `json:"auc"`
	ModelPath string  `json:"model_path"`
	Version   string  `json:"version"`
	SizeBytes int64   `json:"size_bytes"`
}

func (t *Trainer) Train(ctx context.Context, req models.TrainRequest) (models.TrainResult, error) {
	hp := req.Hyperparameters
	cmd := exec.CommandContext(ctx, t.command,
		"--org-id", req.OrgID.String(),
		"--num-leaves", strconv.Itoa(hp.NumLeaves),
		"--learning-rate", strconv.FormatFloat(hp.LearningRate, 'g', -1, 64),
		"--feature-fraction", strconv.FormatFloat(hp.FeatureFraction, 'g', -1, 64),
		"--bagging-fraction", strconv.FormatFloat(hp.BaggingFraction, 'g', -1, 64),
		"--max-depth", strconv.Itoa(hp.MaxDepth),
		"--num-iterations", strconv.Itoa(hp.NumIterations),
		"--data-range-days", strconv.Itoa(req.DataRangeDays),
	)
	cmd.Dir = t.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.TrainResult{}, fmt.Errorf("%w: %v", trainererrors.ErrTrainingTimeout, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.TrainResult{}, fmt.Errorf("%w: exit code %d: %s",
				trainererrors.ErrTrainingFailed, exitErr.ExitCode(), truncate(stderr.String(), 500))
		}
		return models.TrainResult{}, fmt.Errorf("%w: %v", trainererrors.ErrBackendUnavailable, err)
	}

	var out scriptOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return models.TrainResult{}, fmt.Errorf("%w: %v", trainererrors.ErrInvalidResponse, err)
	}

	version := out.Version
	if version == "" {
		version = "v" + time.Now().UTC().Format("20060102_150405")
	}

	return models.TrainResult{
		Handle: models.ModelHandle{
			Version:      version,
			Format:       "onnx",
			ArtifactPath: out.ModelPath,
			SizeBytes:    out.SizeBytes,
		},
		Metrics: models.TrainingMetrics{
			Accuracy:  out.Accuracy,
			Precision: out.Precision,
			Recall:    out.Recall,
			AUC:       out.AUC,
		},
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Compile-time check that Trainer implements models.Trainer.
var _ models.Trainer = (*Trainer)(nil)
