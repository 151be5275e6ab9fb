package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetConfig(ctx context.Context, orgID uuid.UUID) (*models.OrganizationMLConfig, error)
	ListConfigs(ctx context.Context) ([]*models.OrganizationMLConfig, error)
	CreateConfig(ctx context.Context, cfg *models.OrganizationMLConfig) error
	UpdateConfig(ctx context.Context, cfg *models.OrganizationMLConfig) error
	// UpdateModelResult writes the completion-time fields owned by the
	// orchestrator without touching the rest of the config row.
	UpdateModelResult(ctx context.Context, orgID uuid.UUID, version string, accuracy float64) error
	// UpdateScheduleRun advances last_run/next_run after a scheduler firing.
	// A nil lastRun seeds next_run without recording a firing.
	UpdateScheduleRun(ctx context.Context, orgID uuid.UUID, lastRun, nextRun *time.Time) error

	CreateJob(ctx context.Context, job *models.TrainingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.TrainingJob, error)
	GetLatestJob(ctx context.Context, orgID uuid.UUID) (*models.TrainingJob, error)
	ListRecentJobs(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.TrainingJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	// PruneJobs deletes terminal jobs beyond the most recent keep per org.
	PruneJobs(ctx context.Context, orgID uuid.UUID, keep int) error
	CountJobOutcomes(ctx context.Context, since time.Time) (completed int, failed int, err error)

	CreateFeedback(ctx context.Context, fb *models.PredictionFeedback) error
	FeedbackStats(ctx context.Context, since time.Time) (accurate int, total int, err error)
	FeedbackByOrg(ctx context.Context, since time.Time) ([]models.OrgFeedbackCount, error)
	RecentAccuracy(ctx context.Context, orgID uuid.UUID, since time.Time) (float64, int, error)
}

type jobUpdateParams struct {
	ErrorMessage *string
	Metrics      *models.TrainingMetrics
	FinishedAt   *time.Time
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithMetrics(m models.TrainingMetrics) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Metrics = &m
	}
}

func WithFinishedAt(t time.Time) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.FinishedAt = &t
	}
}

// ApplyJobUpdates applies update options to a job in place. In-memory
// implementations use it to mirror the SQL update semantics.
func ApplyJobUpdates(job *models.TrainingJob, opts ...JobUpdateOption) {
	var p jobUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = p.ErrorMessage
	}
	if p.Metrics != nil {
		job.Metrics = p.Metrics
	}
	if p.FinishedAt != nil {
		job.FinishedAt = p.FinishedAt
	}
}
