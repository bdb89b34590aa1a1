package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hariharasuthan-hb/gym-sub000/internal/encoder"
	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

type fakeRunner struct {
	versionErr error
	encodeErr  error
	onEncode   func(dest string)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if len(args) == 1 && args[0] == "-version" {
		return nil, f.versionErr
	}
	if f.onEncode != nil {
		f.onEncode(args[len(args)-1])
	}
	return []byte("ffmpeg output"), f.encodeErr
}

func writeSource(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func opts() model.EncodeOptions {
	return model.EncodeOptions{Quality: "low", MaxWidth: 1280, MaxHeight: 720}
}

func TestConvertSuccessRemovesRaw(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "clip-1.mov", []byte("raw bytes"))
	destHint := filepath.Join(dir, "final", "clip-1.mp4")

	runner := &fakeRunner{onEncode: func(dest string) {
		os.WriteFile(dest, bytes.Repeat([]byte{1}, encoder.MinOutputBytes+1), 0o644)
	}}
	o := New(encoder.New("/usr/bin/ffmpeg", runner))

	final, converted, err := o.Convert(context.Background(), source, destHint, opts())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !converted {
		t.Fatalf("expected a real conversion")
	}
	if final != destHint {
		t.Fatalf("final = %q, want canonical %q", final, destHint)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("raw source should be consumed")
	}
}

func TestConvertFallbackKeepsSourceExtension(t *testing.T) {
	dir := t.TempDir()
	raw := []byte("original mov bytes")
	source := writeSource(t, dir, "clip-2.mov", raw)
	destHint := filepath.Join(dir, "final", "clip-2.mp4")

	o := New(encoder.New("", &fakeRunner{}))

	final, converted, err := o.Convert(context.Background(), source, destHint, opts())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted {
		t.Fatalf("fallback reported as converted")
	}
	if filepath.Ext(final) != ".mov" {
		t.Fatalf("fallback extension = %q, want .mov", filepath.Ext(final))
	}
	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read fallback: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("fallback bytes differ from source")
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("raw source should be consumed")
	}
	if _, err := os.Stat(destHint); !os.IsNotExist(err) {
		t.Fatalf("no canonical artifact should exist after fallback")
	}
}

func TestConvertTooSmallOutputFallsBack(t *testing.T) {
	dir := t.TempDir()
	raw := bytes.Repeat([]byte{7}, 4096)
	source := writeSource(t, dir, "clip-3.avi", raw)
	destHint := filepath.Join(dir, "final", "clip-3.mp4")

	// Encoder exits 0 but writes a suspiciously small file.
	runner := &fakeRunner{onEncode: func(dest string) {
		os.WriteFile(dest, []byte("tiny"), 0o644)
	}}
	o := New(encoder.New("/usr/bin/ffmpeg", runner))

	final, converted, err := o.Convert(context.Background(), source, destHint, opts())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted {
		t.Fatalf("too-small output must not count as converted")
	}
	if filepath.Ext(final) != ".avi" {
		t.Fatalf("fallback extension = %q", filepath.Ext(final))
	}
	// The truncated canonical output must be gone, or the prober would find
	// the wrong artifact.
	if _, err := os.Stat(destHint); !os.IsNotExist(err) {
		t.Fatalf("truncated canonical output left behind")
	}
	got, _ := os.ReadFile(final)
	if !bytes.Equal(got, raw) {
		t.Fatalf("fallback bytes differ from source")
	}
}

func TestConvertMissingSourceIsHardFailure(t *testing.T) {
	dir := t.TempDir()
	o := New(encoder.New("", &fakeRunner{}))
	_, _, err := o.Convert(context.Background(), filepath.Join(dir, "nope.mov"), filepath.Join(dir, "out.mp4"), opts())
	if err == nil {
		t.Fatalf("expected an error when no artifact can be produced")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error should wrap the open failure: %v", err)
	}
}

func TestConvertMp4SourceFallback(t *testing.T) {
	// A source already in the canonical container falls back onto the
	// canonical path itself.
	dir := t.TempDir()
	raw := []byte("already mp4")
	source := writeSource(t, dir, "clip-4.mp4", raw)
	destHint := filepath.Join(dir, "final", "clip-4.mp4")

	o := New(encoder.New("", &fakeRunner{}))
	final, _, err := o.Convert(context.Background(), source, destHint, opts())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if final != destHint {
		t.Fatalf("final = %q, want %q", final, destHint)
	}
	got, _ := os.ReadFile(final)
	if !bytes.Equal(got, raw) {
		t.Fatalf("bytes differ")
	}
}
