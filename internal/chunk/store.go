// Package chunk implements durable temporary storage for sliced uploads and
// their reassembly into a single source file. Chunks may arrive in any order
// and may be resent; assembly happens only once the last-index chunk has been
// seen and every index is present.
package chunk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrInvalidSession guards against path traversal through caller ids.
	ErrInvalidSession = errors.New("invalid upload session id")
	// ErrEmptyChunk rejects zero-byte chunk bodies.
	ErrEmptyChunk = errors.New("chunk body is empty")

	sessionRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// MissingChunksError names every absent index so the client can retry just
// those chunks. The partial session stays on disk.
type MissingChunksError struct {
	Missing []int
}

func (e *MissingChunksError) Error() string {
	return fmt.Sprintf("upload incomplete, missing chunks %v", e.Missing)
}

// Store keeps chunk sessions under root, one directory per session id with
// one file per chunk index.
type Store struct {
	root string
}

// NewStore creates the session root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk root: %w", err)
	}
	return &Store{root: root}, nil
}

// ReceiveChunk persists one chunk and reports whether it carried the
// last-chunk signal. Re-sending an index overwrites the previous copy, which
// makes client retries idempotent.
func (s *Store) ReceiveChunk(sessionID string, index, total int, body io.Reader) (last bool, err error) {
	if !sessionRe.MatchString(sessionID) {
		return false, ErrInvalidSession
	}
	if total < 1 {
		return false, fmt.Errorf("totalChunks must be >= 1, got %d", total)
	}
	if index < 0 || index >= total {
		return false, fmt.Errorf("chunk index %d out of range [0,%d)", index, total)
	}

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create session dir: %w", err)
	}

	// Write to a temp name first so a torn write never masquerades as a
	// complete chunk.
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return false, fmt.Errorf("create chunk temp: %w", err)
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return false, fmt.Errorf("write chunk %d: %w", index, err)
	}
	if n == 0 {
		os.Remove(tmp.Name())
		return false, ErrEmptyChunk
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, strconv.Itoa(index))); err != nil {
		os.Remove(tmp.Name())
		return false, fmt.Errorf("store chunk %d: %w", index, err)
	}
	return index == total-1, nil
}

// Missing scans a session for absent indices in [0, total).
func (s *Store) Missing(sessionID string, total int) ([]int, error) {
	if !sessionRe.MatchString(sessionID) {
		return nil, ErrInvalidSession
	}
	present := make(map[int]bool, total)
	entries, err := os.ReadDir(s.sessionDir(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	for _, e := range entries {
		if idx, convErr := strconv.Atoi(e.Name()); convErr == nil {
			present[idx] = true
		}
	}
	var missing []int
	for i := 0; i < total; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing, nil
}

// Assemble verifies completeness and concatenates the chunks in strict
// ascending index order into destPath. On success the session directory is
// removed; on a MissingChunksError it is left intact so only the absent
// indices need to be resent.
func (s *Store) Assemble(sessionID string, total int, destPath string) error {
	missing, err := s.Missing(sessionID, total)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &MissingChunksError{Missing: missing}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	out, err := os.CreateTemp(filepath.Dir(destPath), ".assemble-*")
	if err != nil {
		return fmt.Errorf("create assembly temp: %w", err)
	}
	tmpName := out.Name()
	cleanup := func() {
		out.Close()
		os.Remove(tmpName)
	}

	dir := s.sessionDir(sessionID)
	for i := 0; i < total; i++ {
		f, err := os.Open(filepath.Join(dir, strconv.Itoa(i)))
		if err != nil {
			cleanup()
			return fmt.Errorf("open chunk %d: %w", i, err)
		}
		_, err = io.Copy(out, f)
		f.Close()
		if err != nil {
			cleanup()
			return fmt.Errorf("append chunk %d: %w", i, err)
		}
	}
	if err := out.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync assembled file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close assembled file: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize assembled file: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		// The source file is in place, so a stuck session dir is only noise
		// for the sweeper to collect later.
		return nil
	}
	return nil
}

// Abandon removes a session directory and everything in it.
func (s *Store) Abandon(sessionID string) error {
	if !sessionRe.MatchString(sessionID) {
		return ErrInvalidSession
	}
	return os.RemoveAll(s.sessionDir(sessionID))
}

// SweepOlderThan removes sessions whose directory has not been modified for
// at least ttl. Returns the number of sessions removed.
func (s *Store) SweepOlderThan(ttl time.Duration) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0
	}
	removed := 0
	cutoff := time.Now().Add(-ttl)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.RemoveAll(filepath.Join(s.root, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}
