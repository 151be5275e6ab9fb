package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const configColumns = `org_id, prediction_enabled, num_leaves, learning_rate, feature_fraction,
	bagging_fraction, max_depth, num_iterations, data_range_days, schedule_pattern,
	schedule_enabled, last_run, next_run, model_version, model_accuracy, created_at, updated_at`

func scanConfig(row pgx.Row) (*models.OrganizationMLConfig, error) {
	var c models.OrganizationMLConfig
	err := row.Scan(&c.OrgID, &c.PredictionEnabled,
		&c.Hyperparameters.NumLeaves, &c.Hyperparameters.LearningRate,
		&c.Hyperparameters.FeatureFraction, &c.Hyperparameters.BaggingFraction,
		&c.Hyperparameters.MaxDepth, &c.Hyperparameters.NumIterations,
		&c.DataRangeDays, &c.Schedule.Pattern, &c.Schedule.Enabled,
		&c.Schedule.LastRun, &c.Schedule.NextRun,
		&c.ModelVersion, &c.ModelAccuracy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// --- ML Configs ---

func (s *PostgresStore) GetConfig(ctx context.Context, orgID uuid.UUID) (*models.OrganizationMLConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM ml_configs WHERE org_id = $1`, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) ListConfigs(ctx context.Context) ([]*models.OrganizationMLConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+configColumns+` FROM ml_configs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.OrganizationMLConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) CreateConfig(ctx context.Context, cfg *models.OrganizationMLConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ml_configs (`+configColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		cfg.OrgID, cfg.PredictionEnabled,
		cfg.Hyperparameters.NumLeaves, cfg.Hyperparameters.LearningRate,
		cfg.Hyperparameters.FeatureFraction, cfg.Hyperparameters.BaggingFraction,
		cfg.Hyperparameters.MaxDepth, cfg.Hyperparameters.NumIterations,
		cfg.DataRangeDays, cfg.Schedule.Pattern, cfg.Schedule.Enabled,
		cfg.Schedule.LastRun, cfg.Schedule.NextRun,
		cfg.ModelVersion, cfg.ModelAccuracy, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create config: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateConfig(ctx context.Context, cfg *models.OrganizationMLConfig) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ml_configs SET
		   prediction_enabled = $2, num_leaves = $3, learning_rate = $4,
		   feature_fraction = $5, bagging_fraction = $6, max_depth = $7,
		   num_iterations = $8, data_range_days = $9, schedule_pattern = $10,
		   schedule_enabled = $11, last_run = $12, next_run = $13, updated_at = NOW()
		 WHERE org_id = $1`,
		cfg.OrgID, cfg.PredictionEnabled,
		cfg.Hyperparameters.NumLeaves, cfg.Hyperparameters.LearningRate,
		cfg.Hyperparameters.FeatureFraction, cfg.Hyperparameters.BaggingFraction,
		cfg.Hyperparameters.MaxDepth, cfg.Hyperparameters.NumIterations,
		cfg.DataRangeDays, cfg.Schedule.Pattern, cfg.Schedule.Enabled,
		cfg.Schedule.LastRun, cfg.Schedule.NextRun)
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateModelResult(ctx context.Context, orgID uuid.UUID, version string, accuracy float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ml_configs SET model_version = $2, model_accuracy = $3, updated_at = NOW()
		 WHERE org_id = $1`, orgID, version, accuracy)
	if err != nil {
		return fmt.Errorf("update model result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateScheduleRun(ctx context.Context, orgID uuid.UUID, lastRun, nextRun *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ml_configs SET last_run = COALESCE($2, last_run), next_run = $3, updated_at = NOW()
		 WHERE org_id = $1`, orgID, lastRun, nextRun)
	if err != nil {
		return fmt.Errorf("update schedule run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Training Jobs ---

const jobColumns = `id, org_id, status, triggered_by, started_at, finished_at,
	accuracy, "precision", recall, auc, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*models.TrainingJob, error) {
	var j models.TrainingJob
	var accuracy, precision, recall, auc *float64
	err := row.Scan(&j.ID, &j.OrgID, &j.Status, &j.TriggeredBy, &j.StartedAt, &j.FinishedAt,
		&accuracy, &precision, &recall, &auc, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if accuracy != nil {
		j.Metrics = &models.TrainingMetrics{
			Accuracy:  *accuracy,
			Precision: *precision,
			Recall:    *recall,
			AUC:       *auc,
		}
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.TrainingJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO training_jobs (id, org_id, status, triggered_by, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.OrgID, job.Status, job.TriggeredBy, job.StartedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.TrainingJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM training_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetLatestJob(ctx context.Context, orgID uuid.UUID) (*models.TrainingJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM training_jobs WHERE org_id = $1
		 ORDER BY created_at DESC LIMIT 1`, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.TrainingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM training_jobs WHERE org_id = $1
		 ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	var params jobUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	var accuracy, precision, recall, auc *float64
	if params.Metrics != nil {
		accuracy = &params.Metrics.Accuracy
		precision = &params.Metrics.Precision
		recall = &params.Metrics.Recall
		auc = &params.Metrics.AUC
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE training_jobs SET
		   status = $2,
		   error_message = COALESCE($3, error_message),
		   finished_at = COALESCE($4, finished_at),
		   accuracy = COALESCE($5, accuracy),
		   "precision" = COALESCE($6, "precision"),
		   recall = COALESCE($7, recall),
		   auc = COALESCE($8, auc),
		   updated_at = NOW()
		 WHERE id = $1`,
		id, status, params.ErrorMessage, params.FinishedAt, accuracy, precision, recall, auc)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PruneJobs(ctx context.Context, orgID uuid.UUID, keep int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM training_jobs
		 WHERE org_id = $1
		   AND status IN ('completed', 'failed')
		   AND id NOT IN (
		     SELECT id FROM training_jobs WHERE org_id = $1
		     ORDER BY created_at DESC LIMIT $2
		   )`, orgID, keep)
	if err != nil {
		return fmt.Errorf("prune jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountJobOutcomes(ctx context.Context, since time.Time) (int, int, error) {
	var completed, failed int
	err := s.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status = 'completed'),
		   COUNT(*) FILTER (WHERE status = 'failed')
		 FROM training_jobs WHERE created_at >= $1`, since).Scan(&completed, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count job outcomes: %w", err)
	}
	return completed, failed, nil
}

// --- Prediction Feedback ---

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *models.PredictionFeedback) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prediction_feedback (id, org_id, prediction_id, accurate, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		fb.ID, fb.OrgID, fb.PredictionID, fb.Accurate, fb.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) FeedbackStats(ctx context.Context, since time.Time) (int, int, error) {
	var accurate, total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE accurate), COUNT(*)
		 FROM prediction_feedback WHERE created_at >= $1`, since).Scan(&accurate, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("feedback stats: %w", err)
	}
	return accurate, total, nil
}

func (s *PostgresStore) FeedbackByOrg(ctx context.Context, since time.Time) ([]models.OrgFeedbackCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT org_id, COUNT(*), COUNT(*) FILTER (WHERE accurate)
		 FROM prediction_feedback WHERE created_at >= $1
		 GROUP BY org_id ORDER BY org_id`, since)
	if err != nil {
		return nil, fmt.Errorf("feedback by org: %w", err)
	}
	defer rows.Close()

	var counts []models.OrgFeedbackCount
	for rows.Next() {
		var c models.OrgFeedbackCount
		if err := rows.Scan(&c.OrgID, &c.Predictions, &c.Accurate); err != nil {
			return nil, fmt.Errorf("scan feedback count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *PostgresStore) RecentAccuracy(ctx context.Context, orgID uuid.UUID, since time.Time) (float64, int, error) {
	var accurate, total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE accurate), COUNT(*)
		 FROM prediction_feedback WHERE org_id = $1 AND created_at >= $2`,
		orgID, since).Scan(&accurate, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("recent accuracy: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(accurate) / float64(total), total, nil
}

// isDuplicateKeyError reports whether err is a Postgres unique violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
