// Package media defines the on-disk layout shared by the upload path, the
// transcode worker, and the completion prober. Raw sources live in a raw/
// subtree; final artifacts are siblings one directory up sharing the same
// base name. That convention is load-bearing: readiness is inferred purely
// from file presence, with no job-status lookup.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// CanonicalExt is the container every successful conversion normalizes to.
	CanonicalExt = ".mp4"

	videosDir = "videos"
	rawDir    = "raw"
	chunksDir = "chunks"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Layout resolves paths under a media root.
type Layout struct {
	Root string
}

// NewLayout creates the directory tree under root.
func NewLayout(root string) (*Layout, error) {
	l := &Layout{Root: root}
	for _, dir := range []string{l.FinalDir(), l.RawDir(), l.ChunkRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir %s: %w", dir, err)
		}
	}
	return l, nil
}

// FinalDir is where converted (or fallen-back) artifacts live.
func (l *Layout) FinalDir() string {
	return filepath.Join(l.Root, videosDir)
}

// RawDir holds assembled-but-unconverted sources.
func (l *Layout) RawDir() string {
	return filepath.Join(l.Root, videosDir, rawDir)
}

// ChunkRoot holds in-flight chunk sessions.
func (l *Layout) ChunkRoot() string {
	return filepath.Join(l.Root, chunksDir)
}

// RawPath returns the raw source path for a base name and source extension.
func (l *Layout) RawPath(base, ext string) string {
	return filepath.Join(l.RawDir(), base+ext)
}

// FinalHint returns the destination hint for a base name. The hint carries
// the canonical extension; the actual artifact may end up with the source's
// extension when conversion falls back.
func (l *Layout) FinalHint(base string) string {
	return filepath.Join(l.FinalDir(), base+CanonicalExt)
}

// Slugify lowercases a file name stem and collapses anything outside [a-z0-9]
// into single dashes. An empty result becomes "video".
func Slugify(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	s := nonSlugRe.ReplaceAllString(strings.ToLower(stem), "-")
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = strings.Trim(s[:80], "-")
	}
	if s == "" {
		return "video"
	}
	return s
}

// NewBaseName derives a collision-free base name from an original file name.
func NewBaseName(originalName string) string {
	return fmt.Sprintf("%s-%d", Slugify(originalName), time.Now().UnixNano())
}

// BaseName strips directory and extension from a path or hint.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FindSibling returns the first existing file in dir named base plus any
// extension, or "" when none exists.
func FindSibling(dir, base string) string {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return ""
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err == nil && !info.IsDir() {
			return m
		}
	}
	return ""
}

// AllowedExt reports whether ext (with leading dot, any case) is in the
// configured allow list.
func AllowedExt(ext string, allowed []string) bool {
	ext = strings.ToLower(ext)
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
