package job

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SHW4T/CONVO-DOWNLO/internal/artifact"
	"github.com/SHW4T/CONVO-DOWNLO/internal/progress"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Transcoder is the opaque media transform: it extracts the audio track
// of a local video file into dst. Probe may expose a duration estimate
// used to pace fabricated progress.
type Transcoder interface {
	Probe(ctx context.Context, src string) (time.Duration, error)
	Extract(ctx context.Context, src, dst string) error
}

// Fetcher is the opaque remote media fetch: it downloads the media behind
// a reel URL into dir and returns the path of the primary video file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// Messenger is the slice of the transport adapter a job needs: pulling
// the source attachment and delivering the final artifact.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	SendAudio(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error
	SendVideo(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error
	DownloadFile(ctx context.Context, fileID, dst string) error
}

type Config struct {
	// OpTimeout bounds each external fetch/transform call. Default 5m.
	OpTimeout time.Duration

	// MinEstimate suppresses cadence updates for transcodes shorter than
	// this. Default 30s.
	MinEstimate time.Duration

	// FetchEstimate is the fabricated timeline for remote downloads,
	// which expose no real duration. Default 5s.
	FetchEstimate time.Duration
}

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Minute
	}
	if c.MinEstimate <= 0 {
		c.MinEstimate = 30 * time.Second
	}
	if c.FetchEstimate <= 0 {
		c.FetchEstimate = 5 * time.Second
	}
	return c
}

// Runner drives one job through its stages, invoking the external
// operations and the progress reporter at each transition. Artifact
// release is unconditional: every handle acquired during a run is
// released before Run returns, on success, failure and cancellation.
type Runner struct {
	artifacts  *artifact.Store
	reporter   *progress.Reporter
	messenger  Messenger
	transcoder Transcoder
	fetcher    Fetcher
	cfg        Config
	log        logx.Logger
}

func NewRunner(artifacts *artifact.Store, reporter *progress.Reporter, messenger Messenger, transcoder Transcoder, fetcher Fetcher, cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		artifacts:  artifacts,
		reporter:   reporter,
		messenger:  messenger,
		transcoder: transcoder,
		fetcher:    fetcher,
		cfg:        cfg.withDefaults(),
		log:        log,
	}
}

// Run executes the job to a terminal stage. The returned error carries
// internal detail for the caller's logs; the requester only ever sees
// the fixed failure text.
func (r *Runner) Run(ctx context.Context, j *Job) error {
	j.Stage = StageQueued
	j.StartedAt = time.Now()

	// Input validation fails fast: no ticket opened, no artifact acquired.
	if err := validate(j); err != nil {
		j.Stage = StageFailed
		j.Err = err
		return err
	}

	switch j.Kind {
	case KindRemoteDownload:
		return r.runFetch(ctx, j)
	default:
		return r.runTranscode(ctx, j)
	}
}

func validate(j *Job) error {
	switch j.Kind {
	case KindTranscode:
		if j.FileID == "" {
			return ErrNoVideo
		}
	case KindRemoteDownload:
		code, err := ParseReelShortcode(j.URL)
		if err != nil {
			return err
		}
		j.Shortcode = code
	}
	return nil
}

func (r *Runner) runTranscode(ctx context.Context, j *Job) error {
	ticket, err := r.reporter.Open(ctx, j.Requester, "⬇️ Downloading video file...")
	if err != nil {
		return r.fail(ctx, j, nil, fmt.Errorf("open status message: %w", err))
	}

	var handles []artifact.Handle
	defer func() {
		for _, h := range handles {
			r.artifacts.Release(h)
		}
	}()

	j.Stage = StageFetching
	src, err := r.artifacts.Acquire(artifact.KindFile, "convert_src", ".mp4")
	if err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	handles = append(handles, src)
	if err := r.runOp(ctx, func(c context.Context) error {
		return r.messenger.DownloadFile(c, j.FileID, src.Path)
	}); err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("download source video: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	j.Stage = StageProcessing
	r.reporter.Update(ctx, ticket, -1, "🔧 Converting video to MP3 (this may take a while for large files)...")

	// Best-effort estimate; a probe failure just disables cadence.
	if d, perr := r.transcoder.Probe(ctx, src.Path); perr == nil {
		j.Estimate = d
	} else {
		r.log.Debug("probe failed", logx.String("job", j.ID), logx.Err(perr))
	}

	dst, err := r.artifacts.Acquire(artifact.KindFile, "converted", ".mp3")
	if err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	handles = append(handles, dst)

	stop := r.startCadence(ctx, ticket, j.Estimate, r.cfg.MinEstimate, func(percent int, elapsed, total time.Duration) string {
		return fmt.Sprintf("🔧 Converting: %d%% (%d/%d sec)", percent, int(elapsed.Seconds()), int(total.Seconds()))
	})
	err = r.runOp(ctx, func(c context.Context) error {
		return r.transcoder.Extract(c, src.Path, dst.Path)
	})
	stop()
	if err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("transcode: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	j.Stage = StageUploading
	r.reporter.Update(ctx, ticket, -1, "📤 Uploading MP3 file...")
	if err := r.messenger.SendAudio(ctx, j.Requester, dst.Path, "Here's your converted MP3 file!", &kit.SendOptions{ReplyTo: j.ReplyTo}); err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("deliver audio: %w", err))
	}

	j.Stage = StageDone
	// The delivered result supersedes the status message.
	r.reporter.Close(ctx, ticket)
	r.log.Info("job done",
		logx.String("job", j.ID),
		logx.String("kind", j.Kind.String()),
		logx.Duration("dur", time.Since(j.StartedAt)))
	return nil
}

func (r *Runner) runFetch(ctx context.Context, j *Job) error {
	ticket, err := r.reporter.Open(ctx, j.Requester, "🔍 Starting reel download...")
	if err != nil {
		return r.fail(ctx, j, nil, fmt.Errorf("open status message: %w", err))
	}

	var handles []artifact.Handle
	defer func() {
		for _, h := range handles {
			r.artifacts.Release(h)
		}
	}()

	j.Stage = StageFetching
	r.reporter.Update(ctx, ticket, -1, "⬇️ Downloading reel from Instagram...")
	dir, err := r.artifacts.Acquire(artifact.KindDir, "reel", "")
	if err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	handles = append(handles, dir)

	// The fetch exposes no real progress; fabricate a fixed timeline.
	stop := r.startCadence(ctx, ticket, r.cfg.FetchEstimate, 0, func(percent int, elapsed, total time.Duration) string {
		return fmt.Sprintf("⬇️ Downloading reel... %d%% complete", percent)
	})
	videoPath, err := func() (string, error) {
		oc, cancel := r.opCtx(ctx)
		defer cancel()
		return r.fetcher.Fetch(oc, j.URL, dir.Path)
	}()
	stop()
	if err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("fetch reel %s: %w", j.Shortcode, err))
	}

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	j.Stage = StageProcessing
	out, err := r.artifacts.Acquire(artifact.KindFile, "reel", ".mp4")
	if err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	handles = append(handles, out)
	if err := os.Rename(videoPath, out.Path); err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("move downloaded video: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, j, ticket, err)
	}
	j.Stage = StageUploading
	r.reporter.Update(ctx, ticket, -1, "📤 Uploading reel to Telegram...")
	if err := r.messenger.SendVideo(ctx, j.Requester, out.Path, "Here's your Instagram reel!", &kit.SendOptions{ReplyTo: j.ReplyTo}); err != nil {
		return r.fail(ctx, j, ticket, fmt.Errorf("deliver video: %w", err))
	}

	j.Stage = StageDone
	r.reporter.Close(ctx, ticket)
	r.log.Info("job done",
		logx.String("job", j.ID),
		logx.String("kind", j.Kind.String()),
		logx.Duration("dur", time.Since(j.StartedAt)))
	return nil
}

// startCadence fabricates percent updates while an external operation
// runs. The returned stop function cancels the timeline and waits for the
// emitting goroutine, so no update can land after the next stage banner.
func (r *Runner) startCadence(ctx context.Context, t *progress.Ticket, estimate, minEstimate time.Duration, format func(percent int, elapsed, total time.Duration) string) func() {
	if estimate <= 0 || estimate < minEstimate {
		return func() {}
	}
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c := progress.Cadence{Estimate: estimate, Slices: progress.DefaultSlices}
		_ = c.Run(cctx, func(percent int, elapsed, total time.Duration) {
			r.reporter.Update(cctx, t, percent, format(percent, elapsed, total))
		})
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *Runner) runOp(ctx context.Context, op func(context.Context) error) error {
	oc, cancel := r.opCtx(ctx)
	defer cancel()
	return op(oc)
}

func (r *Runner) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.OpTimeout)
	}
	return context.WithCancel(ctx)
}

// fail moves the job to Failed, tears down the status message and tells
// the requester the fixed failure text. Internal detail stays in the log.
func (r *Runner) fail(ctx context.Context, j *Job, t *progress.Ticket, err error) error {
	failedAt := j.Stage
	j.Stage = StageFailed
	j.Err = err
	r.log.Error("job failed",
		logx.String("job", j.ID),
		logx.String("kind", j.Kind.String()),
		logx.String("stage", string(failedAt)),
		logx.Err(err))

	if t != nil {
		r.reporter.Close(ctx, t)
	}
	if _, serr := r.messenger.SendText(ctx, j.Requester, FailureText(j.Kind), &kit.SendOptions{ReplyTo: j.ReplyTo}); serr != nil {
		r.log.Warn("failure notice not delivered", logx.String("job", j.ID), logx.Err(serr))
	}
	return err
}
