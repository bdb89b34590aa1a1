// Package storage provides in-memory implementations of the video and job
// stores. They back tests and the single-node dev mode where no Postgres is
// configured; semantics mirror the pgx repositories.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// MemoryVideoStore guards a map of video records with an RWMutex.
type MemoryVideoStore struct {
	mu     sync.RWMutex
	videos map[string]*model.VideoRecord
}

// NewMemoryVideoStore constructs a MemoryVideoStore.
func NewMemoryVideoStore() *MemoryVideoStore {
	return &MemoryVideoStore{videos: make(map[string]*model.VideoRecord)}
}

// Create inserts a pending record.
func (m *MemoryVideoStore) Create(ctx context.Context, rec *model.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec.Status = model.StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now
	clone := *rec
	m.videos[rec.ID] = &clone
	return nil
}

// Get returns a record copy.
func (m *MemoryVideoStore) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.videos[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// ListByUser returns the owner's videos, newest first.
func (m *MemoryVideoStore) ListByUser(ctx context.Context, userID string) ([]model.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.VideoRecord
	for _, rec := range m.videos {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Review applies a terminal decision; the first decision wins.
func (m *MemoryVideoStore) Review(ctx context.Context, id, reviewerID string, decision model.VideoStatus, feedback string) (*model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.videos[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if rec.Status.Terminal() {
		return nil, model.ErrAlreadyReviewed
	}
	now := time.Now().UTC()
	rec.Status = decision
	rec.ReviewerID = &reviewerID
	rec.Feedback = &feedback
	rec.ReviewedAt = &now
	rec.UpdatedAt = now
	clone := *rec
	return &clone, nil
}

// MemoryJobStore guards a map of conversion job records.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.ConversionJob
}

// NewMemoryJobStore constructs a MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.ConversionJob)}
}

// Create inserts a queued job.
func (m *MemoryJobStore) Create(ctx context.Context, job *model.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	job.Status = model.JobQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

// Get returns a job copy.
func (m *MemoryJobStore) Get(ctx context.Context, id string) (*model.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

// MarkRunning sets the status to running.
func (m *MemoryJobStore) MarkRunning(ctx context.Context, id string) error {
	return m.update(id, func(job *model.ConversionJob) {
		job.Status = model.JobRunning
	})
}

// MarkDone records the final path and whether a real encode ran.
func (m *MemoryJobStore) MarkDone(ctx context.Context, id, finalPath string, converted bool) error {
	return m.update(id, func(job *model.ConversionJob) {
		job.Status = model.JobDone
		job.FinalPath = &finalPath
		job.Converted = converted
		job.Error = nil
	})
}

// MarkFailed records the failure message.
func (m *MemoryJobStore) MarkFailed(ctx context.Context, id, msg string) error {
	return m.update(id, func(job *model.ConversionJob) {
		job.Status = model.JobFailed
		job.Error = &msg
	})
}

// ListStale returns queued or running jobs untouched for longer than age.
func (m *MemoryJobStore) ListStale(ctx context.Context, age time.Duration) ([]model.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-age)
	var out []model.ConversionJob
	for _, job := range m.jobs {
		if (job.Status == model.JobQueued || job.Status == model.JobRunning) && job.UpdatedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryJobStore) update(id string, apply func(*model.ConversionJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.ErrNotFound
	}
	apply(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}
