package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hariharasuthan-hb/gym-sub000/internal/chunk"
	"github.com/hariharasuthan-hb/gym-sub000/internal/config"
	"github.com/hariharasuthan-hb/gym-sub000/internal/encoder"
	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/probe"
	"github.com/hariharasuthan-hb/gym-sub000/internal/queue"
	"github.com/hariharasuthan-hb/gym-sub000/internal/signing"
	"github.com/hariharasuthan-hb/gym-sub000/internal/storage"
	"github.com/hariharasuthan-hb/gym-sub000/internal/transcode"
	"github.com/hariharasuthan-hb/gym-sub000/internal/worker"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, nil
}

// syncDispatcher converts inline so tests observe the post-conversion state
// as soon as the upload call returns.
type syncDispatcher struct {
	proc *worker.Processor
}

func (d syncDispatcher) Dispatch(ctx context.Context, payload queue.TranscodePayload) error {
	return d.proc.HandleJob(ctx, payload)
}

type testEnv struct {
	router http.Handler
	layout *media.Layout
	videos *storage.MemoryVideoStore
}

// newTestEnv builds a full server against t.TempDir with the encoder
// unavailable, the situation the fallback path is designed for.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	layout, err := media.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	chunks, err := chunk.NewStore(layout.ChunkRoot())
	if err != nil {
		t.Fatalf("chunk store: %v", err)
	}
	videos := storage.NewMemoryVideoStore()
	jobs := storage.NewMemoryJobStore()
	proc := worker.NewProcessor(jobs, transcode.New(encoder.New("", noopRunner{})), nil)

	cfg := &config.Config{
		MaxUploadBytes: 20 << 20,
		AllowedExts:    []string{".mp4", ".mov", ".avi"},
		Quality:        "medium",
		MaxWidth:       1280,
		MaxHeight:      720,
		AudioBitrate:   "128k",
		SigningSecret:  []byte("test-secret"),
		SignedURLTTL:   time.Hour,
		SessionTTL:     time.Hour,
	}
	srv := New(cfg, layout, chunks, videos, jobs, syncDispatcher{proc},
		probe.New(layout), signing.NewSigner(cfg.SigningSecret))
	return &testEnv{router: srv.Router(), layout: layout, videos: videos}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func chunkRequest(t *testing.T, uploadID string, index, total int, fileName string, totalSize int64, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("uploadId", uploadID)
	w.WriteField("chunkIndex", fmt.Sprintf("%d", index))
	w.WriteField("totalChunks", fmt.Sprintf("%d", total))
	w.WriteField("fileName", fileName)
	w.WriteField("totalSize", fmt.Sprintf("%d", totalSize))
	w.WriteField("exercise", "squat")
	part, err := w.CreateFormFile("chunk", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/videos/chunks", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "member-1")
	return req
}

func uploadRequest(t *testing.T, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("exercise", "deadlift")
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "member-1")
	return req
}

func TestChunkedUploadEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	// 5 MB fake video in three slices; encoder unavailable, so the pipeline
	// must fall back and still report completion immediately.
	parts := [][]byte{
		bytes.Repeat([]byte{0x11}, 2<<20),
		bytes.Repeat([]byte{0x22}, 2<<20),
		bytes.Repeat([]byte{0x33}, 1<<20),
	}
	var total int64
	for _, p := range parts {
		total += int64(len(p))
	}

	for i := 0; i < 2; i++ {
		rec := env.do(t, chunkRequest(t, "upl-42", i, 3, "My Lift.mov", total, parts[i]))
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk %d: status %d body %s", i, rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["accepted"] != true || int(body["chunkIndex"].(float64)) != i {
			t.Fatalf("chunk %d body: %v", i, body)
		}
	}

	rec := env.do(t, chunkRequest(t, "upl-42", 2, 3, "My Lift.mov", total, parts[2]))
	if rec.Code != http.StatusOK {
		t.Fatalf("final chunk: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	hint, _ := body["finalPathHint"].(string)
	if filepath.Ext(hint) != ".mp4" {
		t.Fatalf("hint %q should carry the canonical extension", hint)
	}
	if body["status"] != "pending" {
		t.Fatalf("status %v", body["status"])
	}

	// Probe straight away: raw consumed, fallback artifact present under the
	// source's original extension.
	probeReq := httptest.NewRequest(http.MethodGet, "/api/videos/probe?hint="+hint, nil)
	probeBody := decodeBody(t, env.do(t, probeReq))
	if probeBody["isComplete"] != true {
		t.Fatalf("probe: %v", probeBody)
	}
	finalPath, _ := probeBody["path"].(string)
	if filepath.Ext(finalPath) != ".mov" {
		t.Fatalf("fallback should keep .mov, got %q", finalPath)
	}

	got, err := os.ReadFile(filepath.FromSlash(finalPath))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, bytes.Join(parts, nil)) {
		t.Fatalf("artifact bytes differ from the uploaded chunks")
	}
}

func TestChunkedUploadNamesMissingChunks(t *testing.T) {
	env := newTestEnv(t)
	data := []byte("chunkdata")

	env.do(t, chunkRequest(t, "upl-gaps", 0, 3, "clip.mov", 27, data))
	rec := env.do(t, chunkRequest(t, "upl-gaps", 2, 3, "clip.mov", 27, data))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	missing, _ := body["missingChunks"].([]any)
	if len(missing) != 1 || int(missing[0].(float64)) != 1 {
		t.Fatalf("missing chunks: %v", body)
	}

	// Retry only the gap, then the final chunk again.
	env.do(t, chunkRequest(t, "upl-gaps", 1, 3, "clip.mov", 27, data))
	rec = env.do(t, chunkRequest(t, "upl-gaps", 2, 3, "clip.mov", 27, data))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSingleShotUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, uploadRequest(t, "malware.exe", []byte("MZ....")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad extension: status %d", rec.Code)
	}

	req := uploadRequest(t, "clip.mov", bytes.Repeat([]byte{0x44}, 1024))
	req.Header.Del("X-User-ID")
	if rec := env.do(t, req); rec.Code != http.StatusForbidden {
		t.Fatalf("missing identity: status %d", rec.Code)
	}
}

func TestSingleShotUploadAndReviewFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, uploadRequest(t, "Bench Press.mov", bytes.Repeat([]byte{0x55}, 2048)))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("missing video id: %v", body)
	}
	if !strings.HasPrefix(body["publicUrl"].(string), "/media/bench-press-") {
		t.Fatalf("public url %v", body["publicUrl"])
	}

	// Record visible while status is pending.
	getRec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/"+id, nil))
	detail := decodeBody(t, getRec)
	video := detail["video"].(map[string]any)
	if video["status"] != "pending" {
		t.Fatalf("video: %v", video)
	}

	// Review without identity is forbidden.
	review := func(reviewer, decision string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(map[string]string{"decision": decision, "feedback": "nice form"})
		req := httptest.NewRequest(http.MethodPost, "/api/videos/"+id+"/review", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if reviewer != "" {
			req.Header.Set("X-Reviewer-ID", reviewer)
		}
		return env.do(t, req)
	}
	if rec := review("", "approve"); rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous review: status %d", rec.Code)
	}
	if rec := review("trainer-7", "maybe"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad decision: status %d", rec.Code)
	}
	if rec := review("trainer-7", "approve"); rec.Code != http.StatusOK {
		t.Fatalf("review: status %d body %s", rec.Code, rec.Body.String())
	}
	// Terminal state: a second decision conflicts.
	if rec := review("trainer-8", "reject"); rec.Code != http.StatusConflict {
		t.Fatalf("second review: status %d", rec.Code)
	}
}

func TestProbeRequiresHint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/probe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMediaServingSignedLinks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, uploadRequest(t, "clip.mov", bytes.Repeat([]byte{0x66}, 1024)))
	body := decodeBody(t, rec)
	publicURL, _ := body["publicUrl"].(string)

	// The signed link serves the fallback artifact even though the URL names
	// the canonical extension.
	req := httptest.NewRequest(http.MethodGet, publicURL, nil)
	serveRec := env.do(t, req)
	if serveRec.Code != http.StatusOK {
		t.Fatalf("signed fetch: status %d", serveRec.Code)
	}
	data, _ := io.ReadAll(serveRec.Body)
	if !bytes.Equal(data, bytes.Repeat([]byte{0x66}, 1024)) {
		t.Fatalf("served bytes differ")
	}

	// Tampered signature is rejected.
	tampered := strings.Replace(publicURL, "sig=", "sig=00", 1)
	if rec := env.do(t, httptest.NewRequest(http.MethodGet, tampered, nil)); rec.Code != http.StatusForbidden {
		t.Fatalf("tampered link: status %d", rec.Code)
	}
}
