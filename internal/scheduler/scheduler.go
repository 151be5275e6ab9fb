// Package scheduler fires scheduled training runs. It polls organization
// configurations on a fixed tick rather than keeping a timer per org, so a
// restart never loses schedule state: everything needed to decide "is a run
// due" lives in the database.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/orchestrator"
	"github.com/sreevalsan/mltrainer/internal/schedule"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// Triggerer starts a training run for an organization.
type Triggerer interface {
	Trigger(ctx context.Context, orgID uuid.UUID, triggeredBy string) (*models.TrainingJob, error)
}

// Scheduler scans organization schedules once per tick and triggers training
// for every org whose next fire time has passed.
type Scheduler struct {
	store   store.Store
	trigger Triggerer
	tick    time.Duration
	now     func() time.Time
}

// New creates a Scheduler.
func New(st store.Store, tr Triggerer, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:   st,
		trigger: tr,
		tick:    cfg.TickInterval,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the scheduler's clock.
func (s *Scheduler) WithNow(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run ticks until ctx is cancelled. An immediate pass runs on startup so a
// schedule that came due while the server was down fires without waiting a
// full tick.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "tick_interval", s.tick)

	s.Tick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single scheduling pass. A failure for one organization never
// prevents the rest from being evaluated.
func (s *Scheduler) Tick(ctx context.Context) {
	configs, err := s.store.ListConfigs(ctx)
	if err != nil {
		slog.Error("scheduler: failed to list configs", "error", err)
		return
	}

	now := s.now()
	for _, cfg := range configs {
		if err := s.evaluate(ctx, cfg, now); err != nil {
			slog.Error("scheduler: org evaluation failed", "org_id", cfg.OrgID, "error", err)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, cfg *models.OrganizationMLConfig, now time.Time) error {
	if !cfg.PredictionEnabled || !cfg.Schedule.Enabled {
		return nil
	}

	spec, err := schedule.Parse(cfg.Schedule.Pattern)
	if err != nil {
		// Persisted patterns are validated on write; an unparseable one
		// means the row was edited out of band.
		return err
	}

	// A freshly enabled schedule has no next fire time yet. Seed it and
	// wait for a later tick.
	if cfg.Schedule.NextRun == nil {
		next, err := spec.NextFireAfter(now)
		if err != nil {
			return err
		}
		return s.store.UpdateScheduleRun(ctx, cfg.OrgID, cfg.Schedule.LastRun, &next)
	}

	if now.Before(*cfg.Schedule.NextRun) {
		return nil
	}

	// Advance the schedule no matter how the trigger goes: a failed or
	// rejected run must not make the same fire time due again every tick.
	next, err := spec.NextFireAfter(now)
	if err != nil {
		return err
	}

	_, triggerErr := s.trigger.Trigger(ctx, cfg.OrgID, models.TriggerScheduled)
	switch {
	case triggerErr == nil:
		slog.Info("scheduler: training triggered", "org_id", cfg.OrgID, "next_run", next)
	case errors.Is(triggerErr, orchestrator.ErrAlreadyRunning):
		slog.Info("scheduler: training already in progress, skipping", "org_id", cfg.OrgID)
	default:
		slog.Error("scheduler: trigger failed", "org_id", cfg.OrgID, "error", triggerErr)
	}

	return s.store.UpdateScheduleRun(ctx, cfg.OrgID, &now, &next)
}
