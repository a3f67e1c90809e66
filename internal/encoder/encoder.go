// Package encoder drives ffmpeg to turn composed frames and an audio
// timeline into the final video file. Frames stream over stdin as raw
// RGBA, so no intermediate image files ever touch disk.
package encoder

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docuvid/internal/compose"
	"docuvid/internal/models"
)

// Encoder profiles.
const (
	ProfileNVENC = "h264_nvenc"
	ProfileCPU   = "libx264"

	musicVolume = 0.12 // music stays well under the narration
)

// FrameSource yields composed frames in order.
type FrameSource interface {
	Next() (frame *image.RGBA, ok bool)
	Total() int
}

// EncodeOptions describes one encode run.
type EncodeOptions struct {
	Width      int
	Height     int
	FPS        int
	Bitrate    string
	OutputPath string
}

// Encoder wraps the ffmpeg and ffprobe binaries.
type Encoder struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	hardware    bool
	runner      CommandRunner
}

// New creates an encoder using the real binaries. hardware enables the
// NVENC attempt; detection still happens per process at encode time.
func New(ffmpegPath, workDir string, hardware bool) *Encoder {
	return NewWithRunner(ffmpegPath, workDir, hardware, execRunner{})
}

// NewWithRunner injects a command runner. Used for tests.
func NewWithRunner(ffmpegPath, workDir string, hardware bool, runner CommandRunner) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: probePathFor(ffmpegPath),
		workDir:     workDir,
		hardware:    hardware,
		runner:      runner,
	}
}

// probePathFor derives the ffprobe path from the ffmpeg path so both
// binaries come from the same installation.
func probePathFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	return filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
}

// HardwareAvailable reports whether ffmpeg lists the NVENC encoder.
func (e *Encoder) HardwareAvailable(ctx context.Context) bool {
	if !e.hardware {
		return false
	}
	output, err := e.runner.Output(ctx, e.ffmpegPath, []string{"-hide_banner", "-encoders"})
	if err != nil {
		log.Printf("[Encoder] encoder detection failed, assuming CPU only: %v", err)
		return false
	}
	return strings.Contains(string(output), ProfileNVENC)
}

// Encode renders one video. frames is a factory because a fallback encode
// needs a fresh stream: frame sources are single-pass. The GPU profile is
// tried first when available; on failure the encode restarts once on the
// CPU profile. Temp files are always cleaned up, including on
// cancellation.
func (e *Encoder) Encode(ctx context.Context, frames func() FrameSource, timeline *compose.AudioTimeline, opts EncodeOptions) (*models.OutputDescriptor, error) {
	profile := ProfileCPU
	if e.HardwareAvailable(ctx) {
		profile = ProfileNVENC
	}

	err := e.encodeWith(ctx, profile, frames(), timeline, opts)
	if err != nil && profile == ProfileNVENC && ctx.Err() == nil {
		log.Printf("[Encoder] %s failed, falling back to %s: %v", ProfileNVENC, ProfileCPU, err)
		profile = ProfileCPU
		err = e.encodeWith(ctx, profile, frames(), timeline, opts)
	}
	if err != nil {
		return nil, err
	}

	duration, err := e.probeFile(ctx, opts.OutputPath)
	if err != nil {
		log.Printf("[Encoder] could not probe output duration, using plan total: %v", err)
		duration = timeline.Total
	}

	log.Printf("[Encoder] Encoded %s (%dx%d, %v, profile=%s)",
		opts.OutputPath, opts.Width, opts.Height, duration, profile)

	return &models.OutputDescriptor{
		Path:           opts.OutputPath,
		Width:          opts.Width,
		Height:         opts.Height,
		Duration:       duration,
		EncoderProfile: profile,
	}, nil
}

func (e *Encoder) encodeWith(ctx context.Context, profile string, src FrameSource, timeline *compose.AudioTimeline, opts EncodeOptions) error {
	tempPath := filepath.Join(e.workDir, fmt.Sprintf("encode_%d.mp4", time.Now().UnixNano()))
	defer os.Remove(tempPath)

	args := e.buildArgs(profile, timeline, opts, tempPath)

	pr, pw := io.Pipe()
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		feedFrames(ctx, src, opts, pw)
	}()

	err := e.runner.Run(ctx, e.ffmpegPath, args, pr)
	pr.Close()
	<-feedDone

	if err != nil {
		return fmt.Errorf("encode with %s: %w", profile, err)
	}
	if err := os.Rename(tempPath, opts.OutputPath); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// feedFrames streams raw RGBA frames into the pipe. It stops on
// cancellation or when ffmpeg closes its end.
func feedFrames(ctx context.Context, src FrameSource, opts EncodeOptions, pw *io.PipeWriter) {
	frameBytes := opts.Width * opts.Height * 4
	for {
		if ctx.Err() != nil {
			pw.CloseWithError(ctx.Err())
			return
		}
		frame, ok := src.Next()
		if !ok {
			pw.Close()
			return
		}
		if len(frame.Pix) != frameBytes {
			pw.CloseWithError(fmt.Errorf("frame size %d does not match %dx%d", len(frame.Pix), opts.Width, opts.Height))
			return
		}
		if _, err := pw.Write(frame.Pix); err != nil {
			// ffmpeg exited; the Run error carries the cause.
			return
		}
	}
}

// buildArgs assembles the full ffmpeg invocation: raw video on stdin,
// one input per narration clip placed with adelay, and optional looping
// background music mixed underneath.
func (e *Encoder) buildArgs(profile string, timeline *compose.AudioTimeline, opts EncodeOptions, outPath string) []string {
	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
	}

	for _, seg := range timeline.Segments {
		args = append(args, "-i", seg.Path)
	}
	hasMusic := timeline.Music != ""
	if hasMusic {
		args = append(args, "-stream_loop", "-1", "-i", timeline.Music)
	}

	filter, audioLabel := buildAudioFilter(timeline)
	if filter != "" {
		args = append(args, "-filter_complex", filter)
	}

	args = append(args, "-map", "0:v")
	if audioLabel != "" {
		args = append(args, "-map", audioLabel, "-c:a", "aac", "-b:a", "192k")
	}

	args = append(args,
		"-c:v", profile,
		"-b:v", opts.Bitrate,
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", timeline.Total.Seconds()),
		"-y",
		outPath,
	)
	return args
}

// buildAudioFilter places each narration clip at its timeline offset and
// mixes the ducked music loop underneath. Returns the filter graph and
// the output label to map, both empty when there is no audio at all.
func buildAudioFilter(timeline *compose.AudioTimeline) (string, string) {
	n := len(timeline.Segments)
	hasMusic := timeline.Music != ""
	if n == 0 && !hasMusic {
		return "", ""
	}

	var parts []string
	var narrLabel string

	switch {
	case n == 1:
		parts = append(parts, fmt.Sprintf("[1:a]%s[narr]", delayFilter(timeline.Segments[0].Offset)))
		narrLabel = "[narr]"
	case n > 1:
		var labels strings.Builder
		for i, seg := range timeline.Segments {
			parts = append(parts, fmt.Sprintf("[%d:a]%s[s%d]", i+1, delayFilter(seg.Offset), i))
			fmt.Fprintf(&labels, "[s%d]", i)
		}
		// duration=longest: the mix must run until the LAST delayed clip
		// ends, not until the first one does.
		parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[narr]", labels.String(), n))
		narrLabel = "[narr]"
	}

	if !hasMusic {
		return strings.Join(parts, ";"), narrLabel
	}

	musicInput := n + 1
	parts = append(parts, fmt.Sprintf("[%d:a]volume=%.2f[music]", musicInput, musicVolume))
	if narrLabel == "" {
		return strings.Join(parts, ";"), "[music]"
	}
	parts = append(parts, fmt.Sprintf("%s[music]amix=inputs=2:duration=first:dropout_transition=3[aout]", narrLabel))
	return strings.Join(parts, ";"), "[aout]"
}

func delayFilter(offset time.Duration) string {
	ms := offset.Milliseconds()
	return fmt.Sprintf("adelay=%d|%d", ms, ms)
}

// ProbeDuration returns the duration of a media file. It satisfies the
// orchestrator's DurationProber.
func (e *Encoder) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	return e.probeFile(ctx, path)
}

func (e *Encoder) probeFile(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := e.runner.Output(ctx, e.ffprobePath, args)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var seconds float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &seconds); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
