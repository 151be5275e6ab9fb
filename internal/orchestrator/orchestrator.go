// Package orchestrator owns the training-job state machine:
// Idle -> Queued -> Running -> {Completed, Failed} -> Idle, with at most one
// non-terminal job per organization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/cache"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/modelcache"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// ErrAlreadyRunning signals that the organization already has a job in a
// non-terminal state. It is a concurrency-control outcome, not a failure:
// callers should treat it as "training is in progress".
var ErrAlreadyRunning = errors.New("training already in progress")

const jobStatusTTL = 30 * time.Minute

// Orchestrator runs training jobs. Mutual exclusion is per organization: a
// slow run for one org never blocks triggers for another.
type Orchestrator struct {
	store   store.Store
	hot     cache.Cache
	cache   *modelcache.Cache
	trainer models.Trainer

	timeout       time.Duration
	historyLimit  int
	warnThreshold float64

	mu   sync.Mutex
	orgs map[uuid.UUID]*orgState

	wg sync.WaitGroup
}

// orgState is the single authoritative owner of one organization's job slot.
type orgState struct {
	mu      sync.Mutex
	active  *models.TrainingJob
	subs    map[int]chan models.TrainingJob
	nextSub int
}

// New creates an Orchestrator.
func New(st store.Store, hot cache.Cache, mc *modelcache.Cache, tr models.Trainer, cfg config.OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		store:         st,
		hot:           hot,
		cache:         mc,
		trainer:       tr,
		timeout:       cfg.TrainingTimeout,
		historyLimit:  cfg.JobHistoryLimit,
		warnThreshold: cfg.AccuracyWarnThreshold,
		orgs:          make(map[uuid.UUID]*orgState),
	}
}

func (o *Orchestrator) state(orgID uuid.UUID) *orgState {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.orgs[orgID]
	if !ok {
		st = &orgState{subs: make(map[int]chan models.TrainingJob)}
		o.orgs[orgID] = st
	}
	return st
}

// Trigger starts a training job for an organization. Returns
// ErrAlreadyRunning when a job is already queued or running, and
// store.ErrNotFound when the organization has no ML configuration. On
// success the returned job is queued; the run proceeds in the background.
func (o *Orchestrator) Trigger(ctx context.Context, orgID uuid.UUID, triggeredBy string) (*models.TrainingJob, error) {
	cfg, err := o.store.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}

	st := o.state(orgID)

	st.mu.Lock()
	if st.active != nil {
		st.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	now := time.Now().UTC()
	job := &models.TrainingJob{
		ID:          uuid.New(),
		OrgID:       orgID,
		Status:      models.JobStatusQueued,
		TriggeredBy: triggeredBy,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.active = job
	st.mu.Unlock()

	if err := o.store.CreateJob(ctx, job); err != nil {
		st.mu.Lock()
		st.active = nil
		st.mu.Unlock()
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = o.hot.SetJobStatus(ctx, orgID, models.JobStatusQueued, jobStatusTTL)
	o.broadcast(st, job)

	slog.Info("training job triggered",
		"org_id", orgID, "job_id", job.ID, "triggered_by", triggeredBy)

	o.wg.Add(1)
	go o.run(st, job, cfg)

	return cloneJob(job), nil
}

// run executes one training job in the background. It recovers from panics
// and always releases the organization's job slot with a terminal status.
func (o *Orchestrator) run(st *orgState, job *models.TrainingJob, cfg *models.OrganizationMLConfig) {
	defer o.wg.Done()

	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in training run", "error", r, "job_id", job.ID)
			o.finish(ctx, st, job, models.JobStatusFailed, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	o.transition(ctx, st, job, models.JobStatusRunning)

	trainCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	result, err := o.trainer.Train(trainCtx, models.TrainRequest{
		OrgID:           job.OrgID,
		Hyperparameters: cfg.Hyperparameters,
		DataRangeDays:   cfg.DataRangeDays,
	})
	if err != nil {
		// The last-known-good model stays authoritative: no cache write, no
		// model version change.
		slog.Warn("training job failed", "org_id", job.OrgID, "job_id", job.ID, "error", err)
		o.finish(ctx, st, job, models.JobStatusFailed, nil, err.Error())
		return
	}

	if err := o.store.UpdateModelResult(ctx, job.OrgID, result.Handle.Version, result.Metrics.Accuracy); err != nil {
		slog.Error("storing model result", "org_id", job.OrgID, "job_id", job.ID, "error", err)
		o.finish(ctx, st, job, models.JobStatusFailed, nil, fmt.Sprintf("storing model result: %v", err))
		return
	}

	o.cache.Put(job.OrgID, result.Handle, result.Handle.SizeBytes)

	if result.Metrics.Accuracy < o.warnThreshold {
		slog.Warn("model accuracy below threshold",
			"org_id", job.OrgID, "job_id", job.ID,
			"accuracy", result.Metrics.Accuracy, "threshold", o.warnThreshold)
	}

	o.finish(ctx, st, job, models.JobStatusCompleted, &result.Metrics, "")

	slog.Info("training job completed",
		"org_id", job.OrgID, "job_id", job.ID,
		"model_version", result.Handle.Version, "accuracy", result.Metrics.Accuracy)
}

// transition moves a job to a non-terminal status and notifies observers.
func (o *Orchestrator) transition(ctx context.Context, st *orgState, job *models.TrainingJob, status string) {
	st.mu.Lock()
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	st.mu.Unlock()

	if err := o.store.UpdateJobStatus(ctx, job.ID, status); err != nil {
		slog.Error("updating job status", "job_id", job.ID, "status", status, "error", err)
	}
	_ = o.hot.SetJobStatus(ctx, job.OrgID, status, jobStatusTTL)
	o.broadcast(st, job)
}

// finish moves a job to a terminal status, releases the organization's job
// slot, prunes history, and notifies observers.
func (o *Orchestrator) finish(ctx context.Context, st *orgState, job *models.TrainingJob, status string, metrics *models.TrainingMetrics, errMsg string) {
	finished := time.Now().UTC()

	st.mu.Lock()
	job.Status = status
	job.FinishedAt = &finished
	job.Metrics = metrics
	if errMsg != "" {
		job.ErrorMessage = &errMsg
	}
	job.UpdatedAt = finished
	st.active = nil
	st.mu.Unlock()

	opts := []store.JobUpdateOption{store.WithFinishedAt(finished)}
	if metrics != nil {
		opts = append(opts, store.WithMetrics(*metrics))
	}
	if errMsg != "" {
		opts = append(opts, store.WithErrorMessage(errMsg))
	}
	if err := o.store.UpdateJobStatus(ctx, job.ID, status, opts...); err != nil {
		slog.Error("updating job status", "job_id", job.ID, "status", status, "error", err)
	}
	if err := o.store.PruneJobs(ctx, job.OrgID, o.historyLimit); err != nil {
		slog.Error("pruning job history", "org_id", job.OrgID, "error", err)
	}

	_ = o.hot.SetJobStatus(ctx, job.OrgID, status, jobStatusTTL)
	o.broadcast(st, job)
}

// Status returns the organization's current job: the in-flight one when
// present, otherwise the most recent from history. store.ErrNotFound when the
// organization never ran.
func (o *Orchestrator) Status(ctx context.Context, orgID uuid.UUID) (*models.TrainingJob, error) {
	st := o.state(orgID)

	st.mu.Lock()
	if st.active != nil {
		job := cloneJob(st.active)
		st.mu.Unlock()
		return job, nil
	}
	st.mu.Unlock()

	return o.store.GetLatestJob(ctx, orgID)
}

// Watch subscribes to job transitions for an organization. Observers receive
// a snapshot on every state change; slow observers miss updates rather than
// blocking the orchestrator. The returned cancel must be called.
func (o *Orchestrator) Watch(orgID uuid.UUID) (<-chan models.TrainingJob, func()) {
	st := o.state(orgID)

	ch := make(chan models.TrainingJob, 16)

	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = ch
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) broadcast(st *orgState, job *models.TrainingJob) {
	st.mu.Lock()
	snapshot := *cloneJob(job)
	for _, ch := range st.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	st.mu.Unlock()
}

// Drain waits for in-flight training runs to finish, or until ctx expires.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneJob(job *models.TrainingJob) *models.TrainingJob {
	clone := *job
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		clone.FinishedAt = &t
	}
	if job.Metrics != nil {
		m := *job.Metrics
		clone.Metrics = &m
	}
	if job.ErrorMessage != nil {
		s := *job.ErrorMessage
		clone.ErrorMessage = &s
	}
	return &clone
}
