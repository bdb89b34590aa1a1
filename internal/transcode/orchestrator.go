// Package transcode orchestrates conversion of an assembled source into its
// final artifact. The policy is two-tier: try a real encode, and on any
// failure class fall back to copying the original bytes into place. A
// member's upload is never discarded because a tool misbehaved; the only
// propagated error is total storage failure, where no artifact exists at all.
package transcode

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hariharasuthan-hb/gym-sub000/internal/encoder"
	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// Orchestrator runs conversions through an encoder adapter.
type Orchestrator struct {
	enc *encoder.Adapter
}

// New constructs an Orchestrator.
func New(enc *encoder.Adapter) *Orchestrator {
	return &Orchestrator{enc: enc}
}

// Convert produces the final artifact for source at the location named by
// destHint. The returned path carries the canonical extension when the encode
// succeeded, or the source's original extension when it fell back. The raw
// source is removed in both cases; its absence is what the completion prober
// reads as "conversion has consumed the upload".
func (o *Orchestrator) Convert(ctx context.Context, sourcePath, destHint string, opts model.EncodeOptions) (finalPath string, converted bool, err error) {
	canonical := withExt(destHint, media.CanonicalExt)
	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return "", false, fmt.Errorf("create destination dir: %w", err)
	}

	outcome := o.enc.Encode(ctx, sourcePath, canonical, opts)
	if outcome.Kind == encoder.OutcomeConverted {
		if err := os.Remove(sourcePath); err != nil {
			log.Printf("transcode: remove raw source %s: %v", sourcePath, err)
		}
		return canonical, true, nil
	}

	switch outcome.Kind {
	case encoder.OutcomeToolUnavailable:
		log.Printf("transcode: encoder unavailable, falling back for %s", sourcePath)
	case encoder.OutcomeTooSmall:
		log.Printf("transcode: output %d bytes below floor, falling back for %s\n%s", outcome.Size, sourcePath, outcome.Diagnostics)
	default:
		log.Printf("transcode: encode failed, falling back for %s\n%s", sourcePath, outcome.Diagnostics)
	}

	// Fallback keeps the source's extension so the artifact is never labeled
	// as a container it isn't.
	fallback := withExt(destHint, filepath.Ext(sourcePath))
	if err := copyFile(sourcePath, fallback); err != nil {
		return "", false, fmt.Errorf("fallback copy: %w", err)
	}
	if fallback != canonical {
		// A half-written encoder output at the canonical path would fool the
		// completion prober into reporting the wrong artifact.
		os.Remove(canonical)
	}
	if err := os.Remove(sourcePath); err != nil {
		log.Printf("transcode: remove raw source %s: %v", sourcePath, err)
	}
	return fallback, false, nil
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("create dest temp: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy bytes: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync dest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close dest: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize dest: %w", err)
	}
	return nil
}
