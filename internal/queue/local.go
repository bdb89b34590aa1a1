package queue

import (
	"context"
	"log"
	"sync"
)

// HandlerFunc executes one conversion job. The worker package supplies it for
// both the asynq consumer and the in-process pool.
type HandlerFunc func(ctx context.Context, payload TranscodePayload) error

// LocalDispatcher runs jobs on an in-process goroutine pool. It serves
// single-node deployments and tests where no redis is configured; semantics
// match the asynq path, including the one-job-per-destination guard.
type LocalDispatcher struct {
	handle HandlerFunc
	jobs   chan TranscodePayload

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewLocalDispatcher starts workers goroutines consuming dispatched jobs
// until ctx is cancelled.
func NewLocalDispatcher(ctx context.Context, workers int, handle HandlerFunc) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &LocalDispatcher{
		handle:   handle,
		jobs:     make(chan TranscodePayload, workers*4),
		inFlight: make(map[string]bool),
	}
	for i := 0; i < workers; i++ {
		go d.worker(ctx)
	}
	return d
}

// Dispatch queues a job, rejecting a second dispatch for a destination that
// already has one pending or running.
func (d *LocalDispatcher) Dispatch(ctx context.Context, payload TranscodePayload) error {
	d.mu.Lock()
	if d.inFlight[payload.DestHint] {
		d.mu.Unlock()
		return ErrDuplicateJob
	}
	d.inFlight[payload.DestHint] = true
	d.mu.Unlock()

	select {
	case d.jobs <- payload:
		return nil
	case <-ctx.Done():
		d.release(payload.DestHint)
		return ctx.Err()
	}
}

func (d *LocalDispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-d.jobs:
			if err := d.handle(ctx, payload); err != nil {
				log.Printf("local dispatcher: job %s failed: %v", payload.JobID, err)
			}
			d.release(payload.DestHint)
		}
	}
}

func (d *LocalDispatcher) release(destHint string) {
	d.mu.Lock()
	delete(d.inFlight, destHint)
	d.mu.Unlock()
}
