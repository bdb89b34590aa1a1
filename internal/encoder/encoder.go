// Package encoder wraps the external ffmpeg tool. It builds one invocation
// per conversion, executes it, and classifies the result; it never decides
// what happens on failure, that is the orchestrator's call.
package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hariharasuthan-hb/gym-sub000/internal/model"
)

// MinOutputBytes is the sanity floor below which an encoder output is treated
// as corrupt. Encoders can exit 0 having written a truncated file under
// resource pressure, so size is checked independently of exit status.
const MinOutputBytes = 1 << 20 // 1 MiB

const diagnosticLines = 20

// OutcomeKind classifies one encode attempt.
type OutcomeKind string

const (
	OutcomeConverted       OutcomeKind = "converted"
	OutcomeToolUnavailable OutcomeKind = "tool-unavailable"
	OutcomeFailed          OutcomeKind = "failed"
	OutcomeTooSmall        OutcomeKind = "output-too-small"
)

// Outcome is the result of Encode. Path is set only for OutcomeConverted;
// Size only for OutcomeTooSmall.
type Outcome struct {
	Kind        OutcomeKind
	Path        string
	Size        int64
	Diagnostics string
}

// ScaleFilter produces the -vf argument constraining output dimensions. It is
// a value so the invocation builder stays free of host-specific branching.
type ScaleFilter func(maxWidth, maxHeight int) string

// DownscaleOnly fits the video inside maxWidth x maxHeight preserving aspect
// ratio, and never upscales smaller sources. Dimensions stay even for libx264.
func DownscaleOnly(maxWidth, maxHeight int) string {
	return fmt.Sprintf(
		"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		maxWidth, maxHeight,
	)
}

var qualityBitrates = map[string]string{
	"low":    "1000k",
	"medium": "2500k",
	"high":   "5000k",
}

// BitrateForQuality resolves a quality name to the target video bitrate.
// Unknown names fall back to medium.
func BitrateForQuality(quality string) string {
	if rate, ok := qualityBitrates[strings.ToLower(quality)]; ok {
		return rate
	}
	return qualityBitrates["medium"]
}

// DoubleBitrate returns twice the numeric value of a bitrate string,
// preserving its unit suffix ("2500k" -> "5000k"). Used for -bufsize.
func DoubleBitrate(rate string) string {
	i := 0
	for i < len(rate) && rate[i] >= '0' && rate[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(rate[:i])
	if err != nil {
		return rate
	}
	return strconv.Itoa(n*2) + rate[i:]
}

// Adapter invokes ffmpeg. The binary path is resolved once at process startup
// and injected; LookupFFmpeg provides the default discovery.
type Adapter struct {
	ffmpegPath string
	runner     Runner
	scale      ScaleFilter
}

// New constructs an Adapter. An empty ffmpegPath means every Encode reports
// OutcomeToolUnavailable.
func New(ffmpegPath string, runner Runner) *Adapter {
	return &Adapter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		scale:      DownscaleOnly,
	}
}

// LookupFFmpeg finds an ffmpeg binary on PATH or in common install locations.
// Returns "" when none is found.
func LookupFFmpeg() string {
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}
	for _, candidate := range []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Available probes the tool by running its version command.
func (a *Adapter) Available(ctx context.Context) bool {
	if a.ffmpegPath == "" {
		return false
	}
	_, err := a.runner.Run(ctx, a.ffmpegPath, "-version")
	return err == nil
}

// BuildArgs assembles the full ffmpeg argument list for one conversion:
// H.264 video at the quality-derived bitrate, AAC audio, downscale-only
// fitting, and faststart so playback can begin before the download finishes.
func (a *Adapter) BuildArgs(sourcePath, destPath string, opts model.EncodeOptions) []string {
	rate := BitrateForQuality(opts.Quality)
	audio := opts.AudioBitrate
	if audio == "" {
		audio = "128k"
	}
	return []string{
		"-y",
		"-i", sourcePath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", DoubleBitrate(rate),
		"-vf", a.scale(opts.MaxWidth, opts.MaxHeight),
		"-c:a", "aac",
		"-b:a", audio,
		"-movflags", "+faststart",
		destPath,
	}
}

// Encode runs one conversion and classifies the result. The caller's context
// bounds the wall clock; a timeout surfaces as OutcomeFailed.
func (a *Adapter) Encode(ctx context.Context, sourcePath, destPath string, opts model.EncodeOptions) Outcome {
	if !a.Available(ctx) {
		return Outcome{Kind: OutcomeToolUnavailable}
	}

	output, err := a.runner.Run(ctx, a.ffmpegPath, a.BuildArgs(sourcePath, destPath, opts)...)
	diag := lastLines(output, diagnosticLines)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Diagnostics: fmt.Sprintf("%v\n%s", err, diag)}
	}

	info, err := os.Stat(destPath)
	if err != nil || info.Size() == 0 {
		return Outcome{Kind: OutcomeFailed, Diagnostics: diag}
	}
	if info.Size() < MinOutputBytes {
		return Outcome{Kind: OutcomeTooSmall, Size: info.Size(), Diagnostics: diag}
	}
	return Outcome{Kind: OutcomeConverted, Path: destPath}
}

func lastLines(output []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
