// Package repository wraps all SQL used by the API and the worker, and
// declares the store interfaces their in-memory counterparts also satisfy.
package repository

import (
	"context"
	"time"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// VideoStore persists video records and drives the review state machine.
type VideoStore interface {
	Create(ctx context.Context, rec *model.VideoRecord) error
	Get(ctx context.Context, id string) (*model.VideoRecord, error)
	ListByUser(ctx context.Context, userID string) ([]model.VideoRecord, error)
	// Review applies a terminal decision atomically. It returns
	// model.ErrAlreadyReviewed when the record already left pending state;
	// reviewer identity and feedback are never overwritten.
	Review(ctx context.Context, id, reviewerID string, decision model.VideoStatus, feedback string) (*model.VideoRecord, error)
}

// JobStore persists durable conversion job records.
type JobStore interface {
	Create(ctx context.Context, job *model.ConversionJob) error
	Get(ctx context.Context, id string) (*model.ConversionJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, finalPath string, converted bool) error
	MarkFailed(ctx context.Context, id, msg string) error
	// ListStale returns queued/running jobs untouched for longer than age,
	// candidates for operator re-dispatch after a worker crash.
	ListStale(ctx context.Context, age time.Duration) ([]model.ConversionJob, error)
}
