// Package mlconfig owns the per-organization ML configuration: validated
// reads and partial updates, including schedule recomputation. Model version
// and accuracy fields are written by the orchestrator, never here.
package mlconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/schedule"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// ValidationError reports every rejected field of an update. The stored
// config is untouched when any field fails.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// HyperparametersUpdate carries optional hyperparameter changes. Nil fields
// keep their stored values.
type HyperparametersUpdate struct {
	NumLeaves       *int     `json:"num_leaves,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	FeatureFraction *float64 `json:"feature_fraction,omitempty"`
	BaggingFraction *float64 `json:"bagging_fraction,omitempty"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	NumIterations   *int     `json:"num_iterations,omitempty"`
}

// ScheduleUpdate carries optional schedule changes.
type ScheduleUpdate struct {
	Pattern *string `json:"pattern,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Update is a partial configuration change: a merge at the field level, not a
// replace. Nil fields retain previous values.
type Update struct {
	PredictionEnabled *bool                  `json:"prediction_enabled,omitempty"`
	Hyperparameters   *HyperparametersUpdate `json:"hyperparameters,omitempty"`
	DataRangeDays     *int                   `json:"data_range_days,omitempty"`
	Schedule          *ScheduleUpdate        `json:"schedule,omitempty"`
}

// Service is the authoritative owner of OrganizationMLConfig records.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New creates a Service backed by st.
func New(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the configuration for an organization, or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationMLConfig, error) {
	return s.store.GetConfig(ctx, orgID)
}

// List returns all organization configurations.
func (s *Service) List(ctx context.Context) ([]*models.OrganizationMLConfig, error) {
	return s.store.ListConfigs(ctx)
}

// Update applies a partial update to an organization's configuration. The
// first update for an unknown organization starts from defaults. All fields
// are validated before anything is stored; a change to the schedule pattern
// or enabled flag recomputes the next firing time so the scheduler's next
// tick observes it. Updating configuration never triggers training.
func (s *Service) Update(ctx context.Context, orgID uuid.UUID, upd Update) (*models.OrganizationMLConfig, error) {
	current, err := s.store.GetConfig(ctx, orgID)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		current = models.DefaultConfig(orgID)
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	merged := *current
	scheduleChanged := applyUpdate(&merged, upd)

	if verr := validate(&merged); verr != nil {
		return nil, verr
	}

	if scheduleChanged || created {
		if err := s.recomputeNextRun(&merged); err != nil {
			return nil, err
		}
	}

	merged.UpdatedAt = s.now()
	if created {
		merged.CreatedAt = merged.UpdatedAt
		if err := s.store.CreateConfig(ctx, &merged); err != nil {
			return nil, fmt.Errorf("create config: %w", err)
		}
		slog.Info("ml config created", "org_id", orgID)
	} else {
		if err := s.store.UpdateConfig(ctx, &merged); err != nil {
			return nil, fmt.Errorf("store config: %w", err)
		}
	}

	return &merged, nil
}

// applyUpdate merges upd into cfg and reports whether the schedule changed.
func applyUpdate(cfg *models.OrganizationMLConfig, upd Update) bool {
	if upd.PredictionEnabled != nil {
		cfg.PredictionEnabled = *upd.PredictionEnabled
	}
	if upd.DataRangeDays != nil {
		cfg.DataRangeDays = *upd.DataRangeDays
	}
	if hp := upd.Hyperparameters; hp != nil {
		if hp.NumLeaves != nil {
			cfg.Hyperparameters.NumLeaves = *hp.NumLeaves
		}
		if hp.LearningRate != nil {
			cfg.Hyperparameters.LearningRate = *hp.LearningRate
		}
		if hp.FeatureFraction != nil {
			cfg.Hyperparameters.FeatureFraction = *hp.FeatureFraction
		}
		if hp.BaggingFraction != nil {
			cfg.Hyperparameters.BaggingFraction = *hp.BaggingFraction
		}
		if hp.MaxDepth != nil {
			cfg.Hyperparameters.MaxDepth = *hp.MaxDepth
		}
		if hp.NumIterations != nil {
			cfg.Hyperparameters.NumIterations = *hp.NumIterations
		}
	}

	changed := false
	if sc := upd.Schedule; sc != nil {
		if sc.Pattern != nil && *sc.Pattern != cfg.Schedule.Pattern {
			cfg.Schedule.Pattern = *sc.Pattern
			changed = true
		}
		if sc.Enabled != nil && *sc.Enabled != cfg.Schedule.Enabled {
			cfg.Schedule.Enabled = *sc.Enabled
			changed = true
		}
	}
	return changed
}

func validate(cfg *models.OrganizationMLConfig) *ValidationError {
	var problems []string
	hp := cfg.Hyperparameters

	if hp.NumLeaves < 2 {
		problems = append(problems, fmt.Sprintf("num_leaves must be at least 2, got %d", hp.NumLeaves))
	}
	if hp.LearningRate <= 0 || hp.LearningRate > 1 {
		problems = append(problems, fmt.Sprintf("learning_rate must be in (0, 1], got %g", hp.LearningRate))
	}
	if hp.FeatureFraction <= 0 || hp.FeatureFraction > 1 {
		problems = append(problems, fmt.Sprintf("feature_fraction must be in (0, 1], got %g", hp.FeatureFraction))
	}
	if hp.BaggingFraction <= 0 || hp.BaggingFraction > 1 {
		problems = append(problems, fmt.Sprintf("bagging_fraction must be in (0, 1], got %g", hp.BaggingFraction))
	}
	if hp.MaxDepth != -1 && hp.MaxDepth < 1 {
		problems = append(problems, fmt.Sprintf("max_depth must be -1 or at least 1, got %d", hp.MaxDepth))
	}
	if hp.NumIterations < 1 {
		problems = append(problems, fmt.Sprintf("num_iterations must be at least 1, got %d", hp.NumIterations))
	}
	if cfg.DataRangeDays < 1 {
		problems = append(problems, fmt.Sprintf("data_range_days must be at least 1, got %d", cfg.DataRangeDays))
	}
	if err := schedule.Validate(cfg.Schedule.Pattern); err != nil {
		problems = append(problems, fmt.Sprintf("schedule.pattern: %v", err))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// recomputeNextRun refreshes NextRun from the (already validated) pattern.
// A disabled schedule keeps no next firing time.
func (s *Service) recomputeNextRun(cfg *models.OrganizationMLConfig) error {
	if !cfg.Schedule.Enabled {
		cfg.Schedule.NextRun = nil
		return nil
	}
	spec, err := schedule.Parse(cfg.Schedule.Pattern)
	if err != nil {
		return err
	}
	next, err := spec.NextFireAfter(s.now())
	if err != nil {
		return err
	}
	cfg.Schedule.NextRun = &next
	return nil
}
