package trainer

import (
	"fmt"

	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/trainer/httpapi"
	"github.com/sreevalsan/mltrainer/internal/trainer/mock"
	"github.com/sreevalsan/mltrainer/internal/trainer/script"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// NewTrainer constructs the appropriate training backend based on config.
// Called once at server startup.
func NewTrainer(cfg config.TrainerConfig) (models.Trainer, error) {
	switch cfg.Backend {
	case "httpapi":
		return httpapi.NewTrainer(cfg.HTTPAPI), nil
	case "script":
		return script.NewTrainer(cfg.Script), nil
	case "mock":
		return mock.NewTrainer(), nil
	default:
		return nil, fmt.Errorf("unknown trainer backend %q: must be one of httpapi, script, mock", cfg.Backend)
	}
}
