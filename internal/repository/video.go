package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// VideoRepository is the pgx-backed VideoStore.
type VideoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository constructs a repository.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

// Create inserts a pending record. The artifact may still be mid-conversion;
// record existence and artifact readiness are independent facts.
func (r *VideoRepository) Create(ctx context.Context, rec *model.VideoRecord) error {
	now := time.Now().UTC()
	rec.Status = model.StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (id, user_id, exercise, artifact_path, public_url, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.UserID, rec.Exercise, rec.ArtifactPath, rec.PublicURL, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// Get returns a video record by id.
func (r *VideoRepository) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, exercise, artifact_path, public_url, status, reviewer_id, feedback, reviewed_at, created_at, updated_at
		FROM videos WHERE id=$1
	`, id)
	rec, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select video: %w", err)
	}
	return rec, nil
}

// ListByUser returns the owner's videos, newest first.
func (r *VideoRepository) ListByUser(ctx context.Context, userID string) ([]model.VideoRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, exercise, artifact_path, public_url, status, reviewer_id, feedback, reviewed_at, created_at, updated_at
		FROM videos WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select videos: %w", err)
	}
	defer rows.Close()
	var out []model.VideoRecord
	for rows.Next() {
		rec, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Review stores a terminal decision. The WHERE status='pending' guard makes
// the transition atomic: the first decision wins, later ones see
// ErrAlreadyReviewed.
func (r *VideoRepository) Review(ctx context.Context, id, reviewerID string, decision model.VideoStatus, feedback string) (*model.VideoRecord, error) {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status=$1, reviewer_id=$2, feedback=$3, reviewed_at=$4, updated_at=$4
		WHERE id=$5 AND status=$6
	`, decision, reviewerID, feedback, now, id, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("update video review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, model.ErrAlreadyReviewed
	}
	return r.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*model.VideoRecord, error) {
	var (
		rec        model.VideoRecord
		reviewerID sql.NullString
		feedback   sql.NullString
		reviewedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Exercise, &rec.ArtifactPath, &rec.PublicURL,
		&rec.Status, &reviewerID, &feedback, &reviewedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if reviewerID.Valid {
		v := reviewerID.String
		rec.ReviewerID = &v
	}
	if feedback.Valid {
		v := feedback.String
		rec.Feedback = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		rec.ReviewedAt = &v
	}
	return &rec, nil
}
