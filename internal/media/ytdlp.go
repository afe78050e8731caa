package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// YtDlp fetches remote media with the local yt-dlp binary.
type YtDlp struct {
	binaryPath string
	log        logx.Logger
}

func NewYtDlp(binaryPath string, log logx.Logger) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &YtDlp{binaryPath: binaryPath, log: log}
}

// Fetch downloads the video behind url into dir and returns the path of
// the downloaded file. yt-dlp names the output itself; the largest .mp4
// in dir after the run is taken as the primary video.
func (y *YtDlp) Fetch(ctx context.Context, url, dir string) (string, error) {
	outTmpl := filepath.Join(dir, "%(id)s.%(ext)s")
	cmd := exec.CommandContext(ctx, y.binaryPath,
		"-f", "mp4/b",
		"--no-warnings",
		"--no-playlist",
		"-o", outTmpl,
		url)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	y.log.Debug("yt-dlp fetch", logx.String("url", url), logx.String("dir", dir))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	path, err := largestVideo(dir)
	if err != nil {
		return "", err
	}
	return path, nil
}

func largestVideo(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".mp4" && ext != ".mkv" && ext != ".webm" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no video file produced in %s", dir)
	}
	return best, nil
}
