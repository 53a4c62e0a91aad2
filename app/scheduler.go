package app

import (
	"context"
	"time"
)

// Run executes a cycle immediately and then one cycle per interval until
// ctx is cancelled. A cycle always runs to completion; the next one starts
// only after it returned, so cycles never overlap.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Infof("keeper started, interval %s", k.opt.Interval)
	for {
		if ctx.Err() != nil {
			break
		}
		start := k.clock.Now()
		k.RunCycle(context.WithoutCancel(ctx))
		wait := nextDelay(k.opt.Interval, k.clock.Since(start))
		if wait == 0 {
			k.logger.Warnf("cycle took longer than the %s interval, starting the next one now", k.opt.Interval)
		}
		select {
		case <-ctx.Done():
		case <-k.clock.After(wait):
		}
	}
	k.logger.Infof("keeper stopped after %d cycles", k.Cycles())
	return nil
}

func nextDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}
