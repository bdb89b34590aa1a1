package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
	"github.com/hariharasuthan-hb/gym-sub000/internal/probe"
)

type videoDetail struct {
	Video *model.VideoRecord `json:"video"`
	Probe probe.Status       `json:"probe"`
}

// handleGetVideo merges the stored record with a live completion probe. A
// record can exist while its artifact is still mid-conversion; the probe is
// the only source of truth for playability.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.videos.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			httpError(w, http.StatusNotFound, "video not found")
			return
		}
		httpError(w, http.StatusInternalServerError, "failed to load video")
		return
	}
	respondJSON(w, http.StatusOK, videoDetail{
		Video: rec,
		Probe: s.prober.Check(rec.ArtifactPath),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = r.Header.Get("X-User-ID")
	}
	if userID == "" {
		httpError(w, http.StatusForbidden, "missing user identity")
		return
	}
	videos, err := s.videos.ListByUser(r.Context(), userID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// handleProbe answers "is conversion finished" for a destination hint. Only
// the base name of the hint is used, so arbitrary paths cannot be probed.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	hint := r.URL.Query().Get("hint")
	if hint == "" {
		httpError(w, http.StatusBadRequest, "missing hint parameter")
		return
	}
	respondJSON(w, http.StatusOK, s.prober.Check(hint))
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

// handleReview applies a trainer's decision. The upstream proxy has already
// established that the reviewer may act for this member; here only the
// identity header is required.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	reviewerID := r.Header.Get("X-Reviewer-ID")
	if reviewerID == "" {
		httpError(w, http.StatusForbidden, "missing reviewer identity")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision, err := model.ParseDecision(req.Decision)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.videos.Review(r.Context(), id, reviewerID, decision, req.Feedback)
	switch {
	case errors.Is(err, model.ErrNotFound):
		httpError(w, http.StatusNotFound, "video not found")
	case errors.Is(err, model.ErrAlreadyReviewed):
		httpError(w, http.StatusConflict, "video already reviewed")
	case err != nil:
		httpError(w, http.StatusInternalServerError, "failed to store decision")
	default:
		respondJSON(w, http.StatusOK, rec)
	}
}

// handleMedia serves final artifacts for deployments without object storage.
// Links are HMAC-signed over the base name, so a fallback artifact under a
// different extension stays reachable through the same signature.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		httpError(w, http.StatusBadRequest, "invalid artifact name")
		return
	}
	base := media.BaseName(name)
	q := r.URL.Query()
	if !s.signer.Validate(base, q.Get("expires"), q.Get("sig")) {
		httpError(w, http.StatusForbidden, "invalid or expired link")
		return
	}

	path := filepath.Join(s.layout.FinalDir(), name)
	if _, err := os.Stat(path); err != nil {
		// The conversion may have fallen back under the source's extension.
		if sibling := media.FindSibling(s.layout.FinalDir(), base); sibling != "" {
			path = sibling
		} else {
			httpError(w, http.StatusNotFound, "artifact not found")
			return
		}
	}
	http.ServeFile(w, r, path)
}
