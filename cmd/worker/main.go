package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/hariharasuthan-hb/gym-sub000/internal/config"
	"github.com/hariharasuthan-hb/gym-sub000/internal/database"
	"github.com/hariharasuthan-hb/gym-sub000/internal/encoder"
	"github.com/hariharasuthan-hb/gym-sub000/internal/repository"
	"github.com/hariharasuthan-hb/gym-sub000/internal/s3storage"
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
	if !cfg.RedisEnabled() {
		log.Fatalf("worker requires GYMSUB_REDIS_ADDR; single-node mode converts inside the api process")
	}

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
		jobs = repository.NewJobRepository(pool)
	} else {
		log.Printf("no database configured, job records will not survive restarts")
		jobs = storage.NewMemoryJobStore()
	}

	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = encoder.LookupFFmpeg()
	}
	if ffmpegPath == "" {
		log.Printf("ffmpeg not found, every conversion will fall back to the original file")
	}
	orch := transcode.New(encoder.New(ffmpegPath, encoder.NewCommandRunner()))

	var mirror worker.Mirror
	if cfg.S3Enabled() {
		store, err := s3storage.New(cfg)
		if err != nil {
			log.Fatalf("init object storage: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("ensure bucket: %v", err)
		}
		mirror = store
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
		Queues:      map[string]int{"transcode": 1},
	})
	processor := worker.NewProcessor(jobs, orch, mirror)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
