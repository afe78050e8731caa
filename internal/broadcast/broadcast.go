// Package broadcast fans one message out to every registered user,
// copying the source message so recipients see it without a forward
// header. Per-target failures are recorded and never stop the run.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/SHW4T/CONVO-DOWNLO/internal/progress"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Copier is the transport slice a broadcast needs.
type Copier interface {
	CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.ChatTarget, messageID int) error
}

type Config struct {
	// RatePerSec caps outbound copies per second. Default 25.
	RatePerSec float64
	// RetryMax is the number of attempts per target. Default 2.
	RetryMax int
	// RetryDelay is the pause before a retry. Default 500ms.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// Outcome records one target's delivery result.
type Outcome struct {
	UserID int64
	Err    error
}

// Run summarizes a completed broadcast.
type Run struct {
	Total    int
	Success  int
	Failed   int
	Outcomes []Outcome
}

// Coordinator drives broadcasts sequentially over a stable target order,
// reporting progress on the initiator's status message in 10% blocks.
type Coordinator struct {
	copier   Copier
	reporter *progress.Reporter
	limiter  *rate.Limiter
	cfg      Config
	log      logx.Logger
}

func NewCoordinator(copier Copier, reporter *progress.Reporter, cfg Config, log logx.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		copier:   copier,
		reporter: reporter,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		cfg:      cfg,
		log:      log,
	}
}

// Run copies the message at (source, messageID) to every target in order.
// Targets are user ids; each is addressed as a private chat. The status
// message is updated after each 10% block of targets and after the last
// target, then finished with the summary line.
func (c *Coordinator) Run(ctx context.Context, initiator kit.ChatTarget, source kit.ChatTarget, messageID int, targets []int64) (Run, error) {
	run := Run{Total: len(targets)}

	ticket, err := c.reporter.Open(ctx, initiator, fmt.Sprintf("📢 Broadcasting to %d users... 0%% complete", run.Total))
	if err != nil {
		return run, fmt.Errorf("open broadcast status: %w", err)
	}

	if run.Total == 0 {
		c.reporter.Finish(ctx, ticket, c.summary(run))
		return run, nil
	}

	// One update per 10% block of the target list, at least one target
	// per block for short lists.
	block := run.Total / 10
	if block < 1 {
		block = 1
	}

	for i, uid := range targets {
		if err := ctx.Err(); err != nil {
			c.reporter.Finish(ctx, ticket, c.summary(run))
			return run, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			c.reporter.Finish(ctx, ticket, c.summary(run))
			return run, err
		}

		err := c.copyOne(ctx, kit.ChatTarget{ChatID: uid}, source, messageID)
		if err != nil {
			run.Failed++
			c.log.Warn("broadcast delivery failed", logx.Int64("user_id", uid), logx.Err(err))
		} else {
			run.Success++
		}
		run.Outcomes = append(run.Outcomes, Outcome{UserID: uid, Err: err})

		done := i + 1
		if done%block == 0 || done == run.Total {
			percent := done * 100 / run.Total
			c.reporter.Update(ctx, ticket, percent, fmt.Sprintf(
				"📢 Broadcasting to %d users... %d%% complete\n✅ Success: %d | ❌ Failed: %d",
				run.Total, percent, run.Success, run.Failed))
		}
	}

	c.reporter.Finish(ctx, ticket, c.summary(run))
	return run, nil
}

func (c *Coordinator) copyOne(ctx context.Context, to kit.ChatTarget, from kit.ChatTarget, messageID int) error {
	var err error
	for attempt := 1; attempt <= c.cfg.RetryMax; attempt++ {
		err = c.copier.CopyMessage(ctx, to, from, messageID)
		if err == nil {
			return nil
		}
		if attempt < c.cfg.RetryMax {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}
	return err
}

func (c *Coordinator) summary(r Run) string {
	return fmt.Sprintf("📢 Broadcast completed!\n✅ Success: %d | ❌ Failed: %d", r.Success, r.Failed)
}
