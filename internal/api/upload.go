package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hariharasuthan-hb/gym-sub000/internal/chunk"
	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
	"github.com/hariharasuthan-hb/gym-sub000/internal/queue"
)

type uploadResponse struct {
	ID            string `json:"id"`
	FinalPathHint string `json:"finalPathHint"`
	PublicURL     string `json:"publicUrl"`
	Status        string `json:"status"`
}

type chunkAccepted struct {
	Accepted   bool `json:"accepted"`
	ChunkIndex int  `json:"chunkIndex"`
}

// handleUpload accepts a whole video in one multipart request. The response
// is sent once the raw source is durably on disk and the conversion job is
// handed off; conversion itself is never awaited.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		httpError(w, http.StatusForbidden, "missing user identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		httpError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}

	var exercise string
	var resp *uploadResponse
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "read multipart form")
			return
		}
		switch part.FormName() {
		case "exercise":
			val, _ := io.ReadAll(io.LimitReader(part, 256))
			exercise = strings.TrimSpace(string(val))
		case "file":
			resp, err = s.acceptUpload(r, part, userID, exercise)
		}
		part.Close()
		if err != nil {
			respondError(w, err)
			return
		}
		if resp != nil {
			break
		}
	}
	if resp == nil {
		httpError(w, http.StatusBadRequest, "missing file part")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) acceptUpload(r *http.Request, part *multipart.Part, userID, exercise string) (*uploadResponse, error) {
	fileName := part.FileName()
	ext := strings.ToLower(filepath.Ext(fileName))
	if !media.AllowedExt(ext, s.cfg.AllowedExts) {
		return nil, &apiError{http.StatusUnprocessableEntity, fmt.Sprintf("file extension %q not allowed", ext)}
	}

	base := media.NewBaseName(fileName)
	rawPath := s.layout.RawPath(base, ext)
	if err := s.persistRaw(part, rawPath); err != nil {
		return nil, err
	}
	return s.finalize(r, userID, exercise, base, rawPath)
}

// persistRaw streams the body to the raw area, sniffing the content type and
// enforcing the size cap as bytes arrive.
func (s *Server) persistRaw(body io.Reader, rawPath string) error {
	out, err := os.Create(rawPath)
	if err != nil {
		return &apiError{http.StatusInternalServerError, "failed to store file"}
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	fail := func(e *apiError) error {
		out.Close()
		os.Remove(rawPath)
		return e
	}
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxUploadBytes {
				return fail(&apiError{http.StatusUnprocessableEntity, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxUploadBytes)})
			}
			if len(sniff) < 512 {
				chunkLen := n
				if remain := 512 - len(sniff); chunkLen > remain {
					chunkLen = remain
				}
				sniff = append(sniff, buf[:chunkLen]...)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return fail(&apiError{http.StatusInternalServerError, "failed to store file"})
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fail(&apiError{http.StatusInternalServerError, "failed to read upload"})
		}
	}
	if written == 0 {
		return fail(&apiError{http.StatusUnprocessableEntity, "empty file"})
	}
	contentType := http.DetectContentType(sniff)
	if !strings.HasPrefix(contentType, "video/") && contentType != "application/octet-stream" {
		return fail(&apiError{http.StatusUnprocessableEntity, fmt.Sprintf("content type %q is not a video", contentType)})
	}
	if err := out.Sync(); err != nil {
		return fail(&apiError{http.StatusInternalServerError, "failed to store file"})
	}
	if err := out.Close(); err != nil {
		os.Remove(rawPath)
		return &apiError{http.StatusInternalServerError, "failed to store file"}
	}
	return nil
}

// handleChunk accepts one slice of a chunked upload. The final slice triggers
// assembly; a missing index fails with the full list so the client can resend
// just those chunks.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		httpError(w, http.StatusForbidden, "missing user identity")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}

	uploadID := r.FormValue("uploadId")
	fileName := r.FormValue("fileName")
	exercise := strings.TrimSpace(r.FormValue("exercise"))
	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "chunkIndex must be an integer")
		return
	}
	total, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "totalChunks must be an integer")
		return
	}
	if totalSize, err := strconv.ParseInt(r.FormValue("totalSize"), 10, 64); err == nil && totalSize > s.cfg.MaxUploadBytes {
		httpError(w, http.StatusUnprocessableEntity, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxUploadBytes))
		return
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !media.AllowedExt(ext, s.cfg.AllowedExts) {
		httpError(w, http.StatusUnprocessableEntity, fmt.Sprintf("file extension %q not allowed", ext))
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "missing chunk part")
		return
	}
	defer file.Close()

	last, err := s.chunks.ReceiveChunk(uploadID, index, total, file)
	if err != nil {
		switch {
		case errors.Is(err, chunk.ErrInvalidSession), errors.Is(err, chunk.ErrEmptyChunk):
			httpError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			var missing *chunk.MissingChunksError
			if errors.As(err, &missing) {
				respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":         "missing chunks",
					"missingChunks": missing.Missing,
				})
				return
			}
			httpError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	if !last {
		respondJSON(w, http.StatusOK, chunkAccepted{Accepted: true, ChunkIndex: index})
		return
	}

	base := media.NewBaseName(fileName)
	rawPath := s.layout.RawPath(base, ext)
	if err := s.chunks.Assemble(uploadID, total, rawPath); err != nil {
		var missing *chunk.MissingChunksError
		if errors.As(err, &missing) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":         "missing chunks",
				"missingChunks": missing.Missing,
			})
			return
		}
		log.Printf("assemble session %s: %v", uploadID, err)
		httpError(w, http.StatusInternalServerError, "failed to assemble upload")
		return
	}

	resp, err := s.finalize(r, userID, exercise, base, rawPath)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// finalize records the pending video and hands the conversion job off. The
// destination hint is fixed here, before dispatch, so the probe endpoint and
// the record agree on a path without any callback.
func (s *Server) finalize(r *http.Request, userID, exercise, base, rawPath string) (*uploadResponse, error) {
	ctx := r.Context()
	destHint := s.layout.FinalHint(base)

	rec := &model.VideoRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Exercise:     exercise,
		ArtifactPath: destHint,
		PublicURL:    s.publicURL(base),
	}
	if err := s.videos.Create(ctx, rec); err != nil {
		log.Printf("create video record: %v", err)
		return nil, &apiError{http.StatusInternalServerError, "failed to store metadata"}
	}

	job := &model.ConversionJob{
		ID:         uuid.NewString(),
		VideoID:    rec.ID,
		SourcePath: rawPath,
		DestHint:   destHint,
		Options: model.EncodeOptions{
			Quality:      s.cfg.Quality,
			MaxWidth:     s.cfg.MaxWidth,
			MaxHeight:    s.cfg.MaxHeight,
			AudioBitrate: s.cfg.AudioBitrate,
		},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		log.Printf("create job record: %v", err)
		return nil, &apiError{http.StatusInternalServerError, "failed to store metadata"}
	}

	payload := queue.TranscodePayload{
		JobID:      job.ID,
		VideoID:    rec.ID,
		SourcePath: rawPath,
		DestHint:   destHint,
		Options:    job.Options,
	}
	if err := s.dispatcher.Dispatch(ctx, payload); err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		log.Printf("dispatch job %s: %v", job.ID, err)
		return nil, &apiError{http.StatusInternalServerError, "failed to queue conversion"}
	}

	return &uploadResponse{
		ID:            rec.ID,
		FinalPathHint: destHint,
		PublicURL:     rec.PublicURL,
		Status:        string(rec.Status),
	}, nil
}

type apiError struct {
	code int
	msg  string
}

func (e *apiError) Error() string { return e.msg }

func respondError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		httpError(w, ae.code, ae.msg)
		return
	}
	httpError(w, http.StatusInternalServerError, "internal error")
}

func httpError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
