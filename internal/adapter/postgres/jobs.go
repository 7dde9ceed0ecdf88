package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/cafemetrics/sales-ingest-service/internal/domain"
)

// JobRepository persists job runs and enforces the monotonic status lifecycle
// at the SQL level, so concurrent workers cannot race a job backwards.
type JobRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobRepository creates a job run repository.
func NewJobRepository(db *sqlx.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

// Create inserts a new job in QUEUED state.
func (r *JobRepository) Create(ctx context.Context, jobID, startedBy string) error {
	query := `
		INSERT INTO job_runs (job_id, started_by, status)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, jobID, startedBy, domain.StatusQueued); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	return nil
}

// Get returns one job run, or domain.ErrUnknownJob.
func (r *JobRepository) Get(ctx context.Context, jobID string) (domain.JobRun, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("job_id", "started_by", "status", "ready_for_prediction",
		"started_at", "finished_at", "log", "created_at")
	sb.From("job_runs")
	sb.Where(sb.Equal("job_id", jobID))

	query, args := sb.Build()
	var job domain.JobRun
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JobRun{}, domain.ErrUnknownJob
		}
		return domain.JobRun{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// MarkRunning transitions QUEUED → RUNNING and stamps started_at.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) error {
	query := `
		UPDATE job_runs
		SET status = $1, started_at = now()
		WHERE job_id = $2 AND status = $3
	`
	return r.transition(ctx, jobID, query, domain.StatusRunning, jobID, domain.StatusQueued)
}

// MarkFinished transitions RUNNING → SUCCESS or FAILED and stamps finished_at.
func (r *JobRepository) MarkFinished(ctx context.Context, jobID string, status domain.JobStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("mark finished with non-terminal status %s: %w", status, domain.ErrInvalidTransition)
	}
	query := `
		UPDATE job_runs
		SET status = $1, finished_at = now()
		WHERE job_id = $2 AND status = $3
	`
	return r.transition(ctx, jobID, query, status, jobID, domain.StatusRunning)
}

func (r *JobRepository) transition(ctx context.Context, jobID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, jobID); errors.Is(err, domain.ErrUnknownJob) {
			return domain.ErrUnknownJob
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetReady flips the ready_for_prediction gate after enrichment completes.
func (r *JobRepository) SetReady(ctx context.Context, jobID string, ready bool) error {
	query := `UPDATE job_runs SET ready_for_prediction = $1 WHERE job_id = $2`
	res, err := r.db.ExecContext(ctx, query, ready, jobID)
	if err != nil {
		return fmt.Errorf("set ready on job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownJob
	}
	return nil
}

// AppendLog appends one line to the job's progress log. Appends are performed
// in SQL so concurrent writers interleave instead of overwriting.
func (r *JobRepository) AppendLog(ctx context.Context, jobID, line string) error {
	query := `UPDATE job_runs SET log = coalesce(log, '') || $1 WHERE job_id = $2`
	res, err := r.db.ExecContext(ctx, query, line+"\n", jobID)
	if err != nil {
		return fmt.Errorf("append log on job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownJob
	}
	return nil
}
