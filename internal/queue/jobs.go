// Package queue defines the transcode task contract and how jobs are handed
// off to workers. Delivery is at-least-once; conversion is idempotent, so a
// duplicate delivery just re-produces the same destination content.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

const (
	// TranscodeTask is scheduled each time a raw source is durably stored.
	TranscodeTask = "video:transcode"

	transcodeQueue = "transcode"
)

// ErrDuplicateJob reports that a job for the same destination path is already
// pending or in flight. Callers treat it as "already queued", not a failure.
var ErrDuplicateJob = errors.New("transcode job already queued for destination")

// TranscodePayload is serialized into the task so the worker knows which
// source to convert and where the artifact must land.
type TranscodePayload struct {
	JobID      string              `json:"job_id"`
	VideoID    string              `json:"video_id"`
	SourcePath string              `json:"source_path"`
	DestHint   string              `json:"dest_hint"`
	Options    model.EncodeOptions `json:"options"`
}

// Dispatcher hands a conversion job to an asynchronous worker. The upload
// handler returns to the client as soon as Dispatch does.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload TranscodePayload) error
}

// AsynqDispatcher enqueues jobs onto a redis-backed asynq queue.
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqDispatcher constructs an AsynqDispatcher. timeout bounds the
// encoder's wall clock per attempt.
func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, timeout: timeout}
}

// Dispatch enqueues a transcode task. The task id is derived from the
// destination path, so at most one job per destination is pending or running
// at a time; a second dispatch surfaces ErrDuplicateJob.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, payload TranscodePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TranscodeTask, data)
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(transcodeQueue),
		asynq.TaskID(fmt.Sprintf("transcode:%s", payload.DestHint)),
		asynq.MaxRetry(3),
		asynq.Timeout(d.timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicateJob
	}
	if err != nil {
		return fmt.Errorf("enqueue transcode task: %w", err)
	}
	return nil
}
