package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Janitor periodically sweeps the work directory for entries older than
// MaxAge. Jobs release their own artifacts; the janitor only catches
// leftovers from crashes and kill -9.
type Janitor struct {
	store  *Store
	log    logx.Logger
	maxAge time.Duration

	cron *cron.Cron
}

func NewJanitor(store *Store, maxAge time.Duration, log logx.Logger) *Janitor {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{store: store, log: log, maxAge: maxAge}
}

// Start schedules the sweep with a cron spec (e.g. "*/30 * * * *").
func (j *Janitor) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { j.Sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.log.Info("artifact janitor started", logx.String("schedule", spec), logx.Duration("max_age", j.maxAge))
	return nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep removes stale entries and returns how many were deleted.
func (j *Janitor) Sweep(ctx context.Context) int {
	entries, err := os.ReadDir(j.store.Dir())
	if err != nil {
		j.log.Warn("janitor read dir failed", logx.Err(err))
		return 0
	}
	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.store.Dir(), e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.Warn("janitor remove failed", logx.String("path", path), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info("stale artifacts removed", logx.Int("count", removed))
	}
	return removed
}
