package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/hariharasuthan-hb/gym-sub000/internal/api"
	"github.com/hariharasuthan-hb/gym-sub000/internal/chunk"
	"github.com/hariharasuthan-hb/gym-sub000/internal/config"
	"github.com/hariharasuthan-hb/gym-sub000/internal/database"
	"github.com/hariharasuthan-hb/gym-sub000/internal/encoder"
	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/probe"
	"github.com/hariharasuthan-hb/gym-sub000/internal/queue"
	"github.com/hariharasuthan-hb/gym-sub000/internal/repository"
	"github.com/hariharasuthan-hb/gym-sub000/internal/s3storage"
	"github.com/hariharasuthan-hb/gym-sub000/internal/signing"
	"github.com/hariharasuthan-hb/gym-sub000/internal/storage"
	"github.com/hariharasuthan-hb/gym-sub000/internal/transcode"
	"github.com/hariharasuthan-hb/gym-sub000/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	layout, err := media.NewLayout(cfg.MediaRoot)
	if err != nil {
		log.Fatalf("init media layout: %v", err)
	}
	chunks, err := chunk.NewStore(layout.ChunkRoot())
	if err != nil {
		log.Fatalf("init chunk store: %v", err)
	}

	var videos repository.VideoStore
	var jobs repository.JobStore
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		videos = repository.NewVideoRepository(pool)
		jobs = repository.NewJobRepository(pool)
	} else {
		log.Printf("no database configured, using in-memory stores")
		videos = storage.NewMemoryVideoStore()
		jobs = storage.NewMemoryJobStore()
	}

	var dispatcher queue.Dispatcher
	if cfg.RedisEnabled() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		dispatcher = queue.NewAsynqDispatcher(client, cfg.EncodeLimit)
	} else {
		log.Printf("no redis configured, converting in-process")
		dispatcher = queue.NewLocalDispatcher(ctx, cfg.WorkerCount, localHandler(ctx, cfg, jobs))
	}

	srv := api.New(cfg, layout, chunks, videos, jobs, dispatcher,
		probe.New(layout), signing.NewSigner(cfg.SigningSecret))
	srv.StartSessionSweeper(ctx)

	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}

// localHandler wires the single-node conversion path: same processor the
// dedicated worker runs, bounded by the configured encode ceiling.
func localHandler(appCtx context.Context, cfg *config.Config, jobs repository.JobStore) queue.HandlerFunc {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = encoder.LookupFFmpeg()
	}
	orch := transcode.New(encoder.New(ffmpegPath, encoder.NewCommandRunner()))

	var mirror worker.Mirror
	if cfg.S3Enabled() {
		store, err := s3storage.New(cfg)
		if err != nil {
			log.Fatalf("init object storage: %v", err)
		}
		if err := store.EnsureBucket(appCtx); err != nil {
			log.Fatalf("ensure bucket: %v", err)
		}
		mirror = store
	}
	proc := worker.NewProcessor(jobs, orch, mirror)

	return func(ctx context.Context, payload queue.TranscodePayload) error {
		jobCtx, cancel := context.WithTimeout(ctx, cfg.EncodeLimit)
		defer cancel()
		return proc.HandleJob(jobCtx, payload)
	}
}
