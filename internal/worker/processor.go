// Package worker consumes conversion jobs and drives the transcode
// orchestrator, keeping the durable job record in step.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/queue"
	"github.com/hariharasuthan-hb/gym-sub000/internal/repository"
	"github.com/hariharasuthan-hb/gym-sub000/internal/transcode"
)

// Mirror replicates a finished artifact to object storage. Optional.
type Mirror interface {
	UploadArtifact(ctx context.Context, path string) (string, error)
}

// Processor is plugged into the asynq worker loop or the local dispatcher.
type Processor struct {
	jobs   repository.JobStore
	orch   *transcode.Orchestrator
	mirror Mirror
}

// NewProcessor constructs a worker processor. mirror may be nil.
func NewProcessor(jobs repository.JobStore, orch *transcode.Orchestrator, mirror Mirror) *Processor {
	return &Processor{jobs: jobs, orch: orch, mirror: mirror}
}

// Handler registers the transcode job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TranscodeTask, p.handleTranscode)
	return mux
}

func (p *Processor) handleTranscode(ctx context.Context, task *asynq.Task) error {
	var payload queue.TranscodePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.HandleJob(ctx, payload)
}

// HandleJob converts one source. Delivery is at-least-once: when the source
// is already gone and a final artifact exists, a previous attempt finished
// and the job is simply marked done again.
func (p *Processor) HandleJob(ctx context.Context, payload queue.TranscodePayload) error {
	failure := func(err error) error {
		log.Printf("transcode job %s failed: %v", payload.JobID, err)
		_ = p.jobs.MarkFailed(ctx, payload.JobID, err.Error())
		return err
	}

	if _, err := os.Stat(payload.SourcePath); os.IsNotExist(err) {
		base := media.BaseName(payload.DestHint)
		if final := media.FindSibling(filepath.Dir(payload.DestHint), base); final != "" {
			_ = p.jobs.MarkDone(ctx, payload.JobID, final, filepath.Ext(final) == media.CanonicalExt)
			return nil
		}
		return failure(fmt.Errorf("source %s missing and no artifact present", payload.SourcePath))
	}

	if err := p.jobs.MarkRunning(ctx, payload.JobID); err != nil {
		return failure(err)
	}

	finalPath, converted, err := p.orch.Convert(ctx, payload.SourcePath, payload.DestHint, payload.Options)
	if err != nil {
		return failure(err)
	}
	if err := p.jobs.MarkDone(ctx, payload.JobID, finalPath, converted); err != nil {
		return failure(err)
	}

	if p.mirror != nil {
		if url, err := p.mirror.UploadArtifact(ctx, finalPath); err != nil {
			log.Printf("mirror %s: %v", finalPath, err)
		} else {
			log.Printf("mirrored %s to %s", finalPath, url)
		}
	}

	log.Printf("job %s done: %s (converted=%t)", payload.JobID, finalPath, converted)
	return nil
}
