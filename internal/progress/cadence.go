package progress

import (
	"context"
	"time"
)

// Cadence fabricates a fixed timeline of percent updates for an external
// operation that exposes only a duration estimate: the estimate is split
// into Slices equal time slices and one update is emitted per slice with
// an increasing percent label. Operations that report real progress can
// bypass this and call Reporter.Update directly.
type Cadence struct {
	Estimate time.Duration
	Slices   int
}

// DefaultSlices matches the reporter's intermediate update cap.
const DefaultSlices = DefaultUpdateCap

// Run sleeps through the timeline, invoking emit(percent, elapsed, total)
// once per slice. It returns early when ctx is cancelled. A zero or
// negative estimate emits nothing.
func (c Cadence) Run(ctx context.Context, emit func(percent int, elapsed, total time.Duration)) error {
	if c.Estimate <= 0 {
		return nil
	}
	slices := c.Slices
	if slices <= 0 {
		slices = DefaultSlices
	}
	step := c.Estimate / time.Duration(slices)
	tmr := time.NewTimer(step)
	defer tmr.Stop()
	for i := 1; i <= slices; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tmr.C:
		}
		percent := i * 100 / slices
		emit(percent, step*time.Duration(i), c.Estimate)
		if i < slices {
			tmr.Reset(step)
		}
	}
	return nil
}
