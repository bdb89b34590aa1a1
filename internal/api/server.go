// Package api exposes the HTTP surface: uploads (single-shot and chunked),
// the completion probe, video records, and review decisions. Authentication
// and permission checks happen upstream; the proxy forwards the caller
// identity in headers.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hariharasuthan-hb/gym-sub000/internal/chunk"
	"github.com/hariharasuthan-hb/gym-sub000/internal/config"
	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/probe"
	"github.com/hariharasuthan-hb/gym-sub000/internal/queue"
	"github.com/hariharasuthan-hb/gym-sub000/internal/repository"
	"github.com/hariharasuthan-hb/gym-sub000/internal/signing"
)

// Server hosts the HTTP handlers and their dependencies.
type Server struct {
	cfg        *config.Config
	layout     *media.Layout
	chunks     *chunk.Store
	videos     repository.VideoStore
	jobs       repository.JobStore
	dispatcher queue.Dispatcher
	prober     *probe.Prober
	signer     *signing.Signer
	server     *http.Server
}

// New constructs a Server.
func New(cfg *config.Config, layout *media.Layout, chunks *chunk.Store,
	videos repository.VideoStore, jobs repository.JobStore,
	dispatcher queue.Dispatcher, prober *probe.Prober, signer *signing.Signer) *Server {
	return &Server{
		cfg:        cfg,
		layout:     layout,
		chunks:     chunks,
		videos:     videos,
		jobs:       jobs,
		dispatcher: dispatcher,
		prober:     prober,
		signer:     signer,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-Reviewer-ID"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/videos", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Post("/chunks", s.handleChunk)
		r.Get("/probe", s.handleProbe)
		r.Get("/{id}", s.handleGetVideo)
		r.Post("/{id}/review", s.handleReview)
	})
	r.Get("/media/{name}", s.handleMedia)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartSessionSweeper periodically removes abandoned chunk sessions. A
// session whose last-chunk signal never arrives would otherwise sit on disk
// forever.
func (s *Server) StartSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.chunks.SweepOlderThan(s.cfg.SessionTTL); n > 0 {
					log.Printf("swept %d abandoned upload sessions", n)
				}
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publicURL(base string) string {
	name := base + media.CanonicalExt
	return fmt.Sprintf("/media/%s?%s", name, s.signer.SignedQuery(base, s.cfg.SignedURLTTL))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
