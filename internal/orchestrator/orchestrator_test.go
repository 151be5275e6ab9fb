package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/cache"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/modelcache"
	"github.com/sreevalsan/mltrainer/internal/orchestrator"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/internal/trainer"
	"github.com/sreevalsan/mltrainer/internal/trainer/mock"
	"github.com/sreevalsan/mltrainer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

// fakeStore implements the slices of store.Store the orchestrator touches.
type fakeStore struct {
	store.Store

	mu       sync.Mutex
	configs  map[uuid.UUID]*models.OrganizationMLConfig
	jobs     map[uuid.UUID]*models.TrainingJob
	versions map[uuid.UUID]string
	accuracy map[uuid.UUID]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:  make(map[uuid.UUID]*models.OrganizationMLConfig),
		jobs:     make(map[uuid.UUID]*models.TrainingJob),
		versions: make(map[uuid.UUID]string),
		accuracy: make(map[uuid.UUID]float64),
	}
}

func (s *fakeStore) addConfig(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[orgID] = models.DefaultConfig(orgID)
}

func (s *fakeStore) GetConfig(_ context.Context, orgID uuid.UUID) (*models.OrganizationMLConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *models.TrainingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	store.ApplyJobUpdates(job, opts...)
	return nil
}

func (s *fakeStore) GetLatestJob(_ context.Context, orgID uuid.UUID) (*models.TrainingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.TrainingJob
	for _, job := range s.jobs {
		if job.OrgID != orgID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *fakeStore) UpdateModelResult(_ context.Context, orgID uuid.UUID, version string, accuracy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[orgID] = version
	s.accuracy[orgID] = accuracy
	return nil
}

func (s *fakeStore) PruneJobs(_ context.Context, _ uuid.UUID, _ int) error { return nil }

func (s *fakeStore) jobCount(orgID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.OrgID == orgID {
			n++
		}
	}
	return n
}

func (s *fakeStore) modelVersion(orgID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[orgID]
}

func (s *fakeStore) modelAccuracy(orgID uuid.UUID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accuracy[orgID]
}

// fakeHot is an in-memory stand-in for the Redis cache.
type fakeHot struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newFakeHot() *fakeHot {
	return &fakeHot{statuses: make(map[uuid.UUID]string)}
}

func (c *fakeHot) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *fakeHot) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *fakeHot) Delete(_ context.Context, _ string) error                         { return nil }
func (c *fakeHot) Ping(_ context.Context) error                                     { return nil }
func (c *fakeHot) Close() error                                                     { return nil }

func (c *fakeHot) SetJobStatus(_ context.Context, orgID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[orgID] = status
	return nil
}

func (c *fakeHot) GetJobStatus(_ context.Context, orgID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[orgID]
	return status, ok, nil
}

func (c *fakeHot) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

var _ cache.Cache = (*fakeHot)(nil)

// ─── helpers ─────────────────────────────────────────────────────────────────

func orchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		TrainingTimeout:       5 * time.Second,
		JobHistoryLimit:       50,
		AccuracyWarnThreshold: 0.8,
	}
}

func newOrchestrator(st store.Store, tr models.Trainer) (*orchestrator.Orchestrator, *modelcache.Cache) {
	mc := modelcache.New(10)
	return orchestrator.New(st, newFakeHot(), mc, tr, orchestratorConfig()), mc
}

// waitTerminal consumes transitions from a watch channel until a terminal
// status arrives.
func waitTerminal(t *testing.T, ch <-chan models.TrainingJob) models.TrainingJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case job := <-ch:
			if job.Terminal() {
				return job
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal job status")
		}
	}
}

// ─── Trigger ─────────────────────────────────────────────────────────────────

func TestTrigger_UnknownOrg(t *testing.T) {
	o, _ := newOrchestrator(newFakeStore(), mock.NewTrainer())

	_, err := o.Trigger(context.Background(), uuid.New(), models.TriggerManual)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTrigger_RunsToCompletion(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	tr := &mock.MockTrainer{
		TrainFunc: func(_ context.Context, req models.TrainRequest) (models.TrainResult, error) {
			// The orchestrator passes the org's stored hyperparameters.
			assert.Equal(t, 31, req.Hyperparameters.NumLeaves)
			assert.Equal(t, 365, req.DataRangeDays)
			return models.TrainResult{
				Handle:  models.ModelHandle{Version: "v20260315_020000", Format: "onnx", SizeBytes: 2048},
				Metrics: models.TrainingMetrics{Accuracy: 0.91, Precision: 0.88, Recall: 0.9, AUC: 0.93},
			}, nil
		},
	}
	o, mc := newOrchestrator(st, tr)

	ch, cancel := o.Watch(org)
	defer cancel()

	job, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	final := waitTerminal(t, ch)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Metrics)
	assert.Equal(t, 0.91, final.Metrics.Accuracy)
	require.NotNil(t, final.FinishedAt)

	// Completion updated the org's model bookkeeping and the cache.
	assert.Equal(t, "v20260315_020000", st.modelVersion(org))
	assert.Equal(t, 0.91, st.modelAccuracy(org))
	handle, ok := mc.Get(org)
	require.True(t, ok)
	assert.Equal(t, "v20260315_020000", handle.Version)
}

func TestTrigger_AlreadyRunning(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	release := make(chan struct{})
	tr := &mock.MockTrainer{
		TrainFunc: func(ctx context.Context, _ models.TrainRequest) (models.TrainResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return models.TrainResult{Handle: models.ModelHandle{Version: "v1"}}, nil
		},
	}
	o, _ := newOrchestrator(st, tr)

	ch, cancel := o.Watch(org)
	defer cancel()

	_, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)

	// A second trigger while the first is in flight is rejected, and no
	// second job is created.
	_, err = o.Trigger(context.Background(), org, models.TriggerScheduled)
	assert.ErrorIs(t, err, orchestrator.ErrAlreadyRunning)
	assert.Equal(t, 1, st.jobCount(org))

	close(release)
	waitTerminal(t, ch)

	// After the terminal state the slot is free again.
	_, err = o.Trigger(context.Background(), org, models.TriggerManual)
	assert.NoError(t, err)
}

func TestTrigger_ConcurrentCallersExactlyOneProceeds(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	release := make(chan struct{})
	tr := &mock.MockTrainer{
		TrainFunc: func(ctx context.Context, _ models.TrainRequest) (models.TrainResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return models.TrainResult{Handle: models.ModelHandle{Version: "v1"}}, nil
		},
	}
	o, _ := newOrchestrator(st, tr)

	const callers = 16
	var wg sync.WaitGroup
	var accepted, rejected int64
	var mu sync.Mutex

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Trigger(context.Background(), org, models.TriggerManual)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, orchestrator.ErrAlreadyRunning):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(release)

	assert.Equal(t, int64(1), accepted)
	assert.Equal(t, int64(callers-1), rejected)
	assert.Equal(t, 1, st.jobCount(org))
}

func TestTrigger_IndependentOrgsRunConcurrently(t *testing.T) {
	st := newFakeStore()
	orgA, orgB := uuid.New(), uuid.New()
	st.addConfig(orgA)
	st.addConfig(orgB)

	started := make(chan uuid.UUID, 2)
	release := make(chan struct{})
	tr := &mock.MockTrainer{
		TrainFunc: func(ctx context.Context, req models.TrainRequest) (models.TrainResult, error) {
			started <- req.OrgID
			select {
			case <-release:
			case <-ctx.Done():
			}
			return models.TrainResult{Handle: models.ModelHandle{Version: "v1"}}, nil
		},
	}
	o, _ := newOrchestrator(st, tr)

	_, err := o.Trigger(context.Background(), orgA, models.TriggerManual)
	require.NoError(t, err)
	_, err = o.Trigger(context.Background(), orgB, models.TriggerManual)
	require.NoError(t, err)

	// One org's in-flight run does not serialize the other's.
	deadline := time.After(2 * time.Second)
	seen := map[uuid.UUID]bool{}
	for len(seen) < 2 {
		select {
		case id := <-started:
			seen[id] = true
		case <-deadline:
			t.Fatal("both orgs should start training concurrently")
		}
	}
	close(release)
}

func TestTrigger_FailureRetainsLastGoodModel(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	o, mc := newOrchestrator(st, mock.NewFailingTrainer(errors.New("data extraction failed")))

	// Seed a last-known-good model.
	mc.Put(org, models.ModelHandle{Version: "v_good"}, 1)

	ch, cancel := o.Watch(org)
	defer cancel()

	_, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)

	final := waitTerminal(t, ch)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "data extraction failed")
	assert.Nil(t, final.Metrics)

	// Failure never touches the cached model or the model version.
	handle, ok := mc.Get(org)
	require.True(t, ok)
	assert.Equal(t, "v_good", handle.Version)
	assert.Equal(t, "", st.modelVersion(org))
}

func TestTrigger_TimeoutMarksJobFailed(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	mc := modelcache.New(10)
	cfg := orchestratorConfig()
	cfg.TrainingTimeout = 50 * time.Millisecond
	o := orchestrator.New(st, newFakeHot(), mc, mock.NewBlockingTrainer(), cfg)

	ch, cancel := o.Watch(org)
	defer cancel()

	_, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)

	final := waitTerminal(t, ch)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, trainer.ErrTrainingTimeout.Error())
	assert.False(t, mc.Contains(org))
}

// ─── Status / Watch ──────────────────────────────────────────────────────────

func TestStatus_NoJobs(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)
	o, _ := newOrchestrator(st, mock.NewTrainer())

	_, err := o.Status(context.Background(), org)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_AfterCompletion(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)
	o, _ := newOrchestrator(st, mock.NewTrainer())

	ch, cancel := o.Watch(org)
	defer cancel()

	triggered, err := o.Trigger(context.Background(), org, models.TriggerScheduled)
	require.NoError(t, err)
	waitTerminal(t, ch)

	job, err := o.Status(context.Background(), org)
	require.NoError(t, err)
	assert.Equal(t, triggered.ID, job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.TriggerScheduled, job.TriggeredBy)
}

func TestWatch_ObservesTransitions(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)
	o, _ := newOrchestrator(st, mock.NewTrainer())

	ch, cancel := o.Watch(org)
	defer cancel()

	_, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)

	var statuses []string
	deadline := time.After(5 * time.Second)
	for {
		var job models.TrainingJob
		select {
		case job = <-ch:
		case <-deadline:
			t.Fatal("timed out waiting for transitions")
		}
		statuses = append(statuses, job.Status)
		if job.Terminal() {
			break
		}
	}
	assert.Equal(t, []string{
		models.JobStatusQueued,
		models.JobStatusRunning,
		models.JobStatusCompleted,
	}, statuses)
}

func TestDrain_WaitsForInflightRuns(t *testing.T) {
	st := newFakeStore()
	org := uuid.New()
	st.addConfig(org)

	release := make(chan struct{})
	tr := &mock.MockTrainer{
		TrainFunc: func(ctx context.Context, _ models.TrainRequest) (models.TrainResult, error) {
			<-release
			return models.TrainResult{Handle: models.ModelHandle{Version: "v1"}}, nil
		},
	}
	o, _ := newOrchestrator(st, tr)

	_, err := o.Trigger(context.Background(), org, models.TriggerManual)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Drain(shortCtx), context.DeadlineExceeded)

	close(release)
	drainCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	assert.NoError(t, o.Drain(drainCtx))
}
