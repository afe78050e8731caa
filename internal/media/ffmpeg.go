// Package media wraps the local ffmpeg and yt-dlp binaries behind the
// narrow interfaces the job runner consumes.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// FFmpeg extracts audio from local video files.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	log         logx.Logger
}

func NewFFmpeg(ffmpegPath, ffprobePath string, log logx.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, log: log}
}

// Probe returns the container duration of src.
func (f *FFmpeg) Probe(ctx context.Context, src string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", out.String(), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Extract converts src's audio track to an MP3 at dst.
func (f *FFmpeg) Extract(ctx context.Context, src, dst string) error {
	args := []string{
		"-i", src,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y", dst,
	}
	f.log.Debug("ffmpeg extract", logx.String("src", src), logx.String("dst", dst))

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w, stderr: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// tail keeps the last n bytes of s, where ffmpeg puts the actual error.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
