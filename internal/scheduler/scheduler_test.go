package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/orchestrator"
	"github.com/sreevalsan/mltrainer/internal/scheduler"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeStore struct {
	store.Store

	mu      sync.Mutex
	configs []*models.OrganizationMLConfig
	listErr error
}

func (s *fakeStore) ListConfigs(_ context.Context) ([]*models.OrganizationMLConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*models.OrganizationMLConfig, len(s.configs))
	for i, cfg := range s.configs {
		clone := *cfg
		out[i] = &clone
	}
	return out, nil
}

func (s *fakeStore) UpdateScheduleRun(_ context.Context, orgID uuid.UUID, lastRun, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range s.configs {
		if cfg.OrgID == orgID {
			if lastRun != nil {
				cfg.Schedule.LastRun = lastRun
			}
			cfg.Schedule.NextRun = nextRun
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStore) scheduleOf(orgID uuid.UUID) models.ScheduleSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range s.configs {
		if cfg.OrgID == orgID {
			return cfg.Schedule
		}
	}
	return models.ScheduleSpec{}
}

type fakeTriggerer struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (t *fakeTriggerer) Trigger(_ context.Context, orgID uuid.UUID, triggeredBy string) (*models.TrainingJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if triggeredBy != models.TriggerScheduled {
		return nil, errors.New("scheduler must trigger as scheduled")
	}
	t.calls = append(t.calls, orgID)
	if t.err != nil {
		return nil, t.err
	}
	return &models.TrainingJob{ID: uuid.New(), OrgID: orgID, Status: models.JobStatusQueued}, nil
}

func (t *fakeTriggerer) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// tickNow is a Sunday at 02:00:30 UTC, thirty seconds past the default
// weekly fire time.
var tickNow = time.Date(2026, 3, 15, 2, 0, 30, 0, time.UTC)

func orgConfig(enabled bool, nextRun *time.Time) *models.OrganizationMLConfig {
	cfg := models.DefaultConfig(uuid.New())
	cfg.Schedule.Enabled = enabled
	cfg.Schedule.NextRun = nextRun
	return cfg
}

func newScheduler(st *fakeStore, tr *fakeTriggerer) *scheduler.Scheduler {
	s := scheduler.New(st, tr, config.SchedulerConfig{TickInterval: time.Minute})
	return s.WithNow(func() time.Time { return tickNow })
}

// ─── Tick ────────────────────────────────────────────────────────────────────

func TestTick_DisabledScheduleNotTriggered(t *testing.T) {
	due := tickNow.Add(-time.Minute)
	cfg := orgConfig(false, &due)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())
	assert.Equal(t, 0, tr.callCount())
}

func TestTick_PredictionDisabledNotTriggered(t *testing.T) {
	due := tickNow.Add(-time.Minute)
	cfg := orgConfig(true, &due)
	cfg.PredictionEnabled = false
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())
	assert.Equal(t, 0, tr.callCount())
}

func TestTick_SeedsNextRunWithoutTriggering(t *testing.T) {
	cfg := orgConfig(true, nil)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())

	assert.Equal(t, 0, tr.callCount())
	sched := st.scheduleOf(cfg.OrgID)
	require.NotNil(t, sched.NextRun)
	// Next Sunday 02:00 after the tick.
	assert.Equal(t, time.Date(2026, 3, 22, 2, 0, 0, 0, time.UTC), *sched.NextRun)
	assert.Nil(t, sched.LastRun)
}

func TestTick_NotDueYet(t *testing.T) {
	future := tickNow.Add(time.Hour)
	cfg := orgConfig(true, &future)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())

	assert.Equal(t, 0, tr.callCount())
	sched := st.scheduleOf(cfg.OrgID)
	require.NotNil(t, sched.NextRun)
	assert.Equal(t, future, *sched.NextRun)
}

func TestTick_DueScheduleFiresAndAdvances(t *testing.T) {
	due := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	cfg := orgConfig(true, &due)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())

	require.Equal(t, 1, tr.callCount())
	assert.Equal(t, cfg.OrgID, tr.calls[0])

	sched := st.scheduleOf(cfg.OrgID)
	require.NotNil(t, sched.LastRun)
	assert.Equal(t, tickNow, *sched.LastRun)
	require.NotNil(t, sched.NextRun)
	assert.Equal(t, time.Date(2026, 3, 22, 2, 0, 0, 0, time.UTC), *sched.NextRun)
}

func TestTick_AdvancesEvenWhenAlreadyRunning(t *testing.T) {
	due := tickNow.Add(-time.Minute)
	cfg := orgConfig(true, &due)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{err: orchestrator.ErrAlreadyRunning}

	newScheduler(st, tr).Tick(context.Background())

	sched := st.scheduleOf(cfg.OrgID)
	require.NotNil(t, sched.NextRun)
	assert.True(t, sched.NextRun.After(tickNow), "a rejected firing must not stay due")
}

func TestTick_AdvancesEvenWhenTriggerFails(t *testing.T) {
	due := tickNow.Add(-time.Minute)
	cfg := orgConfig(true, &due)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{cfg}}
	tr := &fakeTriggerer{err: errors.New("store unavailable")}

	newScheduler(st, tr).Tick(context.Background())

	sched := st.scheduleOf(cfg.OrgID)
	require.NotNil(t, sched.NextRun)
	assert.True(t, sched.NextRun.After(tickNow))
}

func TestTick_OneBadOrgDoesNotBlockOthers(t *testing.T) {
	due := tickNow.Add(-time.Minute)
	bad := orgConfig(true, &due)
	bad.Schedule.Pattern = "not a cron pattern"
	good := orgConfig(true, &due)
	st := &fakeStore{configs: []*models.OrganizationMLConfig{bad, good}}
	tr := &fakeTriggerer{}

	newScheduler(st, tr).Tick(context.Background())

	require.Equal(t, 1, tr.callCount())
	assert.Equal(t, good.OrgID, tr.calls[0])
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	st := &fakeStore{}
	tr := &fakeTriggerer{}
	s := newScheduler(st, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
