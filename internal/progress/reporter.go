// Package progress owns the single mutable status message bound to a
// running job or broadcast. Updates are rate-limited, capped in count,
// and monotonically non-decreasing in percent; all network failures on
// the status surface are best-effort and never abort the owning work.
package progress

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// DefaultUpdateCap bounds the number of intermediate edits per ticket,
// independent of job duration. The final edit does not count against it.
const DefaultUpdateCap = 5

// Surface is the subset of the transport adapter the reporter needs.
type Surface interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	DeleteMessage(ctx context.Context, ref kit.MessageRef) error
}

type Config struct {
	// MinInterval is the minimum spacing between edits. Default 1s.
	MinInterval time.Duration
	// UpdateCap bounds intermediate edits per ticket. Default DefaultUpdateCap.
	UpdateCap int
}

type Reporter struct {
	surface Surface
	cfg     Config
	log     logx.Logger
}

// Ticket binds one job or broadcast run to its status message.
type Ticket struct {
	ref kit.MessageRef

	mu          sync.Mutex
	limiter     *rate.Limiter
	lastPercent int
	updates     int
	closed      bool
}

func NewReporter(surface Surface, cfg Config, log logx.Logger) *Reporter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.UpdateCap <= 0 {
		cfg.UpdateCap = DefaultUpdateCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{surface: surface, cfg: cfg, log: log}
}

// Open posts the initial status message and returns the ticket bound to it.
func (r *Reporter) Open(ctx context.Context, to kit.ChatTarget, text string) (*Ticket, error) {
	ref, err := r.surface.SendText(ctx, to, text, nil)
	if err != nil {
		return nil, err
	}
	// First token is consumed by the Open edit itself; the limiter paces
	// the edits that follow.
	lim := rate.NewLimiter(rate.Every(r.cfg.MinInterval), 1)
	lim.Allow()
	return &Ticket{ref: ref, limiter: lim, lastPercent: -1}, nil
}

// Update edits the status message in place. Percent must be 0..100, or -1
// for percent-less stage banners. Percent-bearing updates count against
// the cap (they are the only updates whose number scales with job
// duration); stage banners are bounded by the fixed stage count and are
// only rate-limited. Updates that would exceed the cap, arrive faster
// than MinInterval, or move percent backwards are dropped. Transport
// failures are logged and swallowed.
func (r *Reporter) Update(ctx context.Context, t *Ticket, percent int, text string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if percent >= 0 && (t.updates >= r.cfg.UpdateCap || percent < t.lastPercent) {
		t.mu.Unlock()
		return
	}
	if !t.limiter.Allow() {
		t.mu.Unlock()
		return
	}
	if percent >= 0 {
		t.updates++
		t.lastPercent = percent
	}
	ref := t.ref
	t.mu.Unlock()

	if err := r.surface.EditText(ctx, ref, text, nil); err != nil {
		r.log.Debug("status edit failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
	}
}

// Finish puts a terminal text on the status message. It bypasses the
// spacing and cap rules (every ticket gets exactly one final edit).
func (r *Reporter) Finish(ctx context.Context, t *Ticket, text string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.lastPercent = 100
	ref := t.ref
	t.mu.Unlock()

	if err := r.surface.EditText(ctx, ref, text, nil); err != nil {
		r.log.Debug("final status edit failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
	}
}

// Close deletes the status message, used when the job's own result
// message supersedes it. Failure to delete is logged and swallowed.
func (r *Reporter) Close(ctx context.Context, t *Ticket) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.closed = true
	ref := t.ref
	t.mu.Unlock()

	if err := r.surface.DeleteMessage(ctx, ref); err != nil {
		r.log.Debug("status delete failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
	}
}

// Snapshot reports ticket counters (for diagnostics and tests).
func (t *Ticket) Snapshot() (updates, lastPercent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates, t.lastPercent
}
