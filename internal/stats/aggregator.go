// Package stats derives performance projections from training jobs and
// prediction feedback. Everything here is computed on demand; nothing is
// persisted beyond the feedback rows themselves.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/cache"
	"github.com/sreevalsan/mltrainer/internal/modelcache"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

const (
	// systemStatsTTL bounds how stale a cached system-stats projection can
	// get. The projection is cheap but hit by dashboards on a short poll.
	systemStatsTTL = 30 * time.Second

	// recentAccuracyWindow is the trailing window used for an org's
	// prediction-accuracy figure in ModelInfo.
	recentAccuracyWindow = 7 * 24 * time.Hour

	modelInfoJobLimit = 10
)

// ModelInfo is the per-organization model dashboard view.
type ModelInfo struct {
	Config         *models.OrganizationMLConfig `json:"config"`
	LatestMetrics  *models.TrainingMetrics      `json:"latest_metrics,omitempty"`
	Cached         bool                         `json:"cached"`
	RecentJobs     []*models.TrainingJob        `json:"recent_jobs"`
	RecentAccuracy float64                      `json:"recent_accuracy"`
	FeedbackCount  int                          `json:"feedback_count"`
}

// Aggregator computes system and per-organization performance views.
type Aggregator struct {
	store      store.Store
	hot        cache.Cache
	modelCache *modelcache.Cache
	now        func() time.Time
}

// New creates an Aggregator.
func New(st store.Store, hot cache.Cache, mc *modelcache.Cache) *Aggregator {
	return &Aggregator{
		store:      st,
		hot:        hot,
		modelCache: mc,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the aggregator's clock.
func (a *Aggregator) WithNow(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// RecordFeedback appends one prediction-accuracy observation for an
// organization. Returns store.ErrNotFound when the org has no configuration.
func (a *Aggregator) RecordFeedback(ctx context.Context, orgID uuid.UUID, predictionID string, accurate bool) (*models.PredictionFeedback, error) {
	if _, err := a.store.GetConfig(ctx, orgID); err != nil {
		return nil, err
	}

	fb := &models.PredictionFeedback{
		ID:           uuid.New(),
		OrgID:        orgID,
		PredictionID: predictionID,
		Accurate:     accurate,
		CreatedAt:    a.now(),
	}
	if err := a.store.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// SystemStats computes the trailing-window projection over jobs and feedback.
// Ratios with an empty denominator are 0, never NaN. Results are memoized in
// the hot cache for a short TTL; a cache outage degrades to recomputation.
func (a *Aggregator) SystemStats(ctx context.Context, windowHours int) (*models.SystemStats, error) {
	key := cache.SystemStatsKey(windowHours)
	if raw, ok, err := a.hot.Get(ctx, key); err == nil && ok {
		var cached models.SystemStats
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	since := a.now().Add(-time.Duration(windowHours) * time.Hour)

	accurate, total, err := a.store.FeedbackStats(ctx, since)
	if err != nil {
		return nil, err
	}
	completed, failed, err := a.store.CountJobOutcomes(ctx, since)
	if err != nil {
		return nil, err
	}
	orgs, err := a.store.FeedbackByOrg(ctx, since)
	if err != nil {
		return nil, err
	}

	var systemAccuracy float64
	if total > 0 {
		systemAccuracy = float64(accurate) / float64(total)
	}
	var successRate float64
	if completed+failed > 0 {
		successRate = float64(completed) / float64(completed+failed)
	}

	cacheStats := a.modelCache.Stats()
	out := &models.SystemStats{
		WindowHours:         windowHours,
		SystemAccuracy:      systemAccuracy,
		TrainingSuccessRate: successRate,
		JobsCompleted:       completed,
		JobsFailed:          failed,
		TotalFeedback:       total,
		Organizations:       orgs,
		CacheSize:           cacheStats.Size,
		CacheMaxSize:        cacheStats.MaxSize,
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := a.hot.Set(ctx, key, raw, systemStatsTTL); err != nil {
			slog.Debug("stats: failed to cache system stats", "error", err)
		}
	}

	return out, nil
}

// ModelInfo assembles the per-organization model view: configuration, latest
// training metrics, model-cache status, recent job history and trailing
// prediction accuracy.
func (a *Aggregator) ModelInfo(ctx context.Context, orgID uuid.UUID) (*ModelInfo, error) {
	cfg, err := a.store.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}

	info := &ModelInfo{
		Config: cfg,
		Cached: a.modelCache.Contains(orgID),
	}

	jobs, err := a.store.ListRecentJobs(ctx, orgID, modelInfoJobLimit)
	if err != nil {
		return nil, err
	}
	info.RecentJobs = jobs

	for _, job := range jobs {
		if job.Status == models.JobStatusCompleted && job.Metrics != nil {
			info.LatestMetrics = job.Metrics
			break
		}
	}

	accuracy, count, err := a.store.RecentAccuracy(ctx, orgID, a.now().Add(-recentAccuracyWindow))
	if err != nil {
		return nil, err
	}
	info.RecentAccuracy = accuracy
	info.FeedbackCount = count

	return info, nil
}
