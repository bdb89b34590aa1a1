package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func receive(t *testing.T, s *Store, session string, index, total int, data []byte) bool {
	t.Helper()
	last, err := s.ReceiveChunk(session, index, total, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("receive chunk %d: %v", index, err)
	}
	return last
}

func TestAssembleAnyArrivalOrder(t *testing.T) {
	chunks := [][]byte{
		[]byte("alpha-"),
		[]byte("bravo-"),
		[]byte("charlie-"),
		[]byte("delta"),
	}
	want := bytes.Join(chunks, nil)

	for trial := 0; trial < 5; trial++ {
		s := newTestStore(t)
		order := rand.Perm(len(chunks))
		session := fmt.Sprintf("session-%d", trial)
		for _, i := range order {
			receive(t, s, session, i, len(chunks), chunks[i])
		}
		dest := filepath.Join(t.TempDir(), "out.bin")
		if err := s.Assemble(session, len(chunks), dest); err != nil {
			t.Fatalf("assemble (order %v): %v", order, err)
		}
		got, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("read assembled: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("assembled bytes mismatch for order %v: got %q want %q", order, got, want)
		}
	}
}

func TestIdempotentResend(t *testing.T) {
	s := newTestStore(t)
	receive(t, s, "resend", 0, 2, []byte("first"))
	receive(t, s, "resend", 0, 2, []byte("first"))
	receive(t, s, "resend", 1, 2, []byte("second"))

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := s.Assemble("resend", 2, dest); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "firstsecond" {
		t.Fatalf("got %q", got)
	}
}

func TestAssembleNamesEveryMissingIndex(t *testing.T) {
	s := newTestStore(t)
	receive(t, s, "gaps", 0, 5, []byte("a"))
	receive(t, s, "gaps", 4, 5, []byte("e"))

	dest := filepath.Join(t.TempDir(), "out.bin")
	err := s.Assemble("gaps", 5, dest)
	var missing *MissingChunksError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingChunksError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Missing, []int{1, 2, 3}) {
		t.Fatalf("missing = %v, want [1 2 3]", missing.Missing)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("truncated artifact must not be produced")
	}

	// The partial session stays intact: resending only the gaps completes it.
	receive(t, s, "gaps", 1, 5, []byte("b"))
	receive(t, s, "gaps", 2, 5, []byte("c"))
	receive(t, s, "gaps", 3, 5, []byte("d"))
	if err := s.Assemble("gaps", 5, dest); err != nil {
		t.Fatalf("assemble after resend: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "abcde" {
		t.Fatalf("got %q", got)
	}
}

func TestAssembleRemovesSession(t *testing.T) {
	s := newTestStore(t)
	receive(t, s, "done", 0, 1, []byte("only"))
	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := s.Assemble("done", 1, dest); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := os.Stat(s.sessionDir("done")); !os.IsNotExist(err) {
		t.Fatalf("session dir should be removed after assembly")
	}
}

func TestReceiveValidation(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.ReceiveChunk("ok", -1, 3, strings.NewReader("x")); err == nil {
		t.Fatalf("negative index accepted")
	}
	if _, err := s.ReceiveChunk("ok", 3, 3, strings.NewReader("x")); err == nil {
		t.Fatalf("index == total accepted")
	}
	if _, err := s.ReceiveChunk("ok", 0, 0, strings.NewReader("x")); err == nil {
		t.Fatalf("totalChunks 0 accepted")
	}
	if _, err := s.ReceiveChunk("ok", 0, 1, strings.NewReader("")); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("empty chunk: got %v", err)
	}
	if _, err := s.ReceiveChunk("../escape", 0, 1, strings.NewReader("x")); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("traversal session id: got %v", err)
	}
	if _, err := s.ReceiveChunk("a/b", 0, 1, strings.NewReader("x")); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("separator session id: got %v", err)
	}
}

func TestLastChunkSignal(t *testing.T) {
	s := newTestStore(t)
	if last := receive(t, s, "sig", 0, 3, []byte("x")); last {
		t.Fatalf("chunk 0 of 3 reported as last")
	}
	if last := receive(t, s, "sig", 2, 3, []byte("z")); !last {
		t.Fatalf("chunk 2 of 3 not reported as last")
	}
}

func TestSweepOlderThan(t *testing.T) {
	s := newTestStore(t)
	receive(t, s, "stale", 0, 2, []byte("x"))
	receive(t, s, "fresh", 0, 2, []byte("y"))

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(s.sessionDir("stale"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if n := s.SweepOlderThan(time.Hour); n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if _, err := os.Stat(s.sessionDir("stale")); !os.IsNotExist(err) {
		t.Fatalf("stale session should be gone")
	}
	if _, err := os.Stat(s.sessionDir("fresh")); err != nil {
		t.Fatalf("fresh session should remain: %v", err)
	}
}
