package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
)

type Kind int

const (
	KindTranscode Kind = iota
	KindRemoteDownload
)

func (k Kind) String() string {
	switch k {
	case KindTranscode:
		return "transcode"
	case KindRemoteDownload:
		return "remote_download"
	default:
		return "unknown"
	}
}

// Stage is the lifecycle position of a job.
//
// Queued -> Fetching -> Processing -> Uploading -> Done, or any stage ->
// Failed on an external-operation error. Done and Failed are terminal.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageFetching   Stage = "fetching"
	StageProcessing Stage = "processing"
	StageUploading  Stage = "uploading"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Job describes one long-running media operation. It is owned exclusively
// by the Runner for its lifetime; by the time Run returns, the job is in a
// terminal stage and all of its artifacts have been released.
type Job struct {
	ID        string
	Kind      Kind
	Requester kit.ChatTarget
	ReplyTo   int // message id the result should reply to (0 = none)

	// Transcode input: the attachment to convert.
	FileID string

	// Remote download input.
	URL       string
	Shortcode string

	Stage     Stage
	StartedAt time.Time
	Estimate  time.Duration
	Err       error
}

var (
	// ErrNoVideo means the transcode request did not reference a video.
	ErrNoVideo = errors.New("no video attachment to convert")

	// ErrBadURL means the download reference does not look like a reel URL.
	ErrBadURL = errors.New("url does not match the reel pattern")
)

// Fixed user-facing texts. Internal error detail is logged only and never
// crosses the chat boundary.
const (
	MsgConvertFailed = "Sorry, I couldn't convert that video. Please try again."
	MsgReelFailed    = "Sorry, I couldn't download that reel. Please check the URL and try again."
)

// FailureText returns the generic failure message for a job kind.
func FailureText(k Kind) string {
	if k == KindRemoteDownload {
		return MsgReelFailed
	}
	return MsgConvertFailed
}

const reelMarker = "instagram.com/reel/"

// ParseReelShortcode validates a reel URL and extracts its shortcode.
func ParseReelShortcode(url string) (string, error) {
	i := strings.Index(url, reelMarker)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrBadURL, url)
	}
	rest := url[i+len(reelMarker):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", fmt.Errorf("%w: %s", ErrBadURL, url)
	}
	return rest, nil
}
