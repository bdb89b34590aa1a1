package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// JobRepository is the pgx-backed JobStore.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository constructs a repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a queued job record.
func (r *JobRepository) Create(ctx context.Context, job *model.ConversionJob) error {
	now := time.Now().UTC()
	job.Status = model.JobQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO conversion_jobs (id, video_id, source_path, dest_hint, status, options, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, job.ID, job.VideoID, job.SourcePath, job.DestHint, job.Status, opts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*model.ConversionJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, video_id, source_path, dest_hint, status, final_path, converted, error_message, options, created_at, updated_at
		FROM conversion_jobs WHERE id=$1
	`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// MarkRunning sets the status to running.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	return r.update(ctx, id, model.JobRunning, nil, nil, nil)
}

// MarkDone records the final artifact path and whether a real encode ran.
func (r *JobRepository) MarkDone(ctx context.Context, id, finalPath string, converted bool) error {
	return r.update(ctx, id, model.JobDone, &finalPath, &converted, nil)
}

// MarkFailed records the failure message.
func (r *JobRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.update(ctx, id, model.JobFailed, nil, nil, &msg)
}

// ListStale returns queued or running jobs untouched for longer than age.
func (r *JobRepository) ListStale(ctx context.Context, age time.Duration) ([]model.ConversionJob, error) {
	cutoff := time.Now().UTC().Add(-age)
	rows, err := r.pool.Query(ctx, `
		SELECT id, video_id, source_path, dest_hint, status, final_path, converted, error_message, options, created_at, updated_at
		FROM conversion_jobs
		WHERE status IN ($1,$2) AND updated_at < $3
		ORDER BY updated_at ASC
	`, model.JobQueued, model.JobRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select stale jobs: %w", err)
	}
	defer rows.Close()
	var out []model.ConversionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (r *JobRepository) update(ctx context.Context, id string, status model.JobStatus, finalPath *string, converted *bool, errorMsg *string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET status=$1,
			final_path = COALESCE($2, final_path),
			converted = COALESCE($3, converted),
			error_message = $4,
			updated_at=$5
		WHERE id=$6
	`, status, finalPath, converted, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (*model.ConversionJob, error) {
	var (
		job       model.ConversionJob
		finalPath sql.NullString
		errorMsg  sql.NullString
		opts      []byte
	)
	if err := row.Scan(&job.ID, &job.VideoID, &job.SourcePath, &job.DestHint, &job.Status,
		&finalPath, &job.Converted, &errorMsg, &opts, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if finalPath.Valid {
		v := finalPath.String
		job.FinalPath = &v
	}
	if errorMsg.Valid {
		v := errorMsg.String
		job.Error = &v
	}
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &job.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return &job, nil
}
